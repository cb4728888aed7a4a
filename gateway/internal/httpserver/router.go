package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/gateway/internal/middleware"
	"github.com/Skotchmaster/social_platform/pkg/identity"
	"github.com/Skotchmaster/social_platform/pkg/response"
)

type Deps struct {
	IdentityURL string
	PostURL     string
	MediaURL    string
	SearchURL   string

	Verifier          identity.TokenVerifier
	Limiter           middleware.Limiter
	CreatePostLimiter middleware.Limiter

	// IPExtractor decides the client address limits are keyed on. Defaults
	// to the socket peer.
	IPExtractor echo.IPExtractor

	UpstreamTimeout time.Duration
	Transport       http.RoundTripper
	Ready           func(ctx context.Context) error
	Logger          *slog.Logger
}

func Register(e *echo.Echo, d *Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Transport == nil {
		d.Transport = newTransport()
	}
	if d.UpstreamTimeout <= 0 {
		d.UpstreamTimeout = 10 * time.Second
	}

	if d.IPExtractor == nil {
		d.IPExtractor = echo.ExtractIPDirect()
	}

	e.HTTPErrorHandler = response.ErrorHandler
	e.IPExtractor = d.IPExtractor

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return response.Fail(c, http.StatusServiceUnavailable, "not ready")
			}
		}
		return c.NoContent(http.StatusOK)
	})

	for _, m := range middleware.Common(d.Logger) {
		e.Pre(m)
	}
	if d.Limiter != nil {
		e.Pre(skipHealth(middleware.RateLimit(d.Limiter, nil)))
	}

	identityProxy, err := newProxy(d.IdentityURL, d.Transport, d.UpstreamTimeout)
	if err != nil {
		return err
	}
	postProxy, err := newProxy(d.PostURL, d.Transport, d.UpstreamTimeout)
	if err != nil {
		return err
	}
	mediaProxy, err := newProxy(d.MediaURL, d.Transport, d.UpstreamTimeout)
	if err != nil {
		return err
	}
	searchProxy, err := newProxy(d.SearchURL, d.Transport, d.UpstreamTimeout)
	if err != nil {
		return err
	}

	auth := middleware.Authenticate(d.Verifier)

	e.Any("/v1/auth/*", identityProxy)

	createPost := []echo.MiddlewareFunc{auth}
	if d.CreatePostLimiter != nil {
		createPost = append(createPost, middleware.RateLimit(d.CreatePostLimiter, nil))
	}
	e.POST("/v1/posts/create-post", postProxy, createPost...)
	e.Any("/v1/posts", postProxy, auth)
	e.Any("/v1/posts/*", postProxy, auth)
	e.Any("/v1/media", mediaProxy, auth)
	e.Any("/v1/media/*", mediaProxy, auth)
	e.Any("/v1/search", searchProxy, auth)
	e.Any("/v1/search/*", searchProxy, auth)

	return nil
}

func skipHealth(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := m(next)
		return func(c echo.Context) error {
			if p := c.Request().URL.Path; p == "/health/live" || p == "/health/ready" {
				return next(c)
			}
			return limited(c)
		}
	}
}
