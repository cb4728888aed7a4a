package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/pkg/identity"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/response"
)

const (
	publicPrefix   = "/v1"
	internalPrefix = "/api"
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// newProxy forwards to target, re-rooting /v1 paths under /api. The caller
// header is always rebuilt from the verified identity in the request
// context; whatever the client sent is dropped.
func newProxy(target string, transport http.RoundTripper, timeout time.Duration) (echo.HandlerFunc, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("upstream url needs scheme and host: " + target)
	}

	p := httputil.NewSingleHostReverseProxy(u)
	p.Transport = transport

	origDirector := p.Director
	p.Director = func(req *http.Request) {
		originalHost := req.Host
		originalProto := "http"
		if req.TLS != nil {
			originalProto = "https"
		} else if xf := req.Header.Get("X-Forwarded-Proto"); xf != "" {
			originalProto = xf
		}

		req.URL.Path = rewritePath(req.URL.Path)
		if req.URL.RawPath != "" {
			req.URL.RawPath = rewritePath(req.URL.RawPath)
		}

		origDirector(req)

		req.Header.Del(identity.Header)
		if who, ok := identity.VerifiedFrom(req.Context()); ok {
			req.Header.Set(identity.Header, who.UserID())
		}

		if req.Header.Get("X-Forwarded-Proto") == "" {
			req.Header.Set("X-Forwarded-Proto", originalProto)
		}
		if req.Header.Get("X-Forwarded-Host") == "" && originalHost != "" {
			req.Header.Set("X-Forwarded-Host", originalHost)
		}
	}

	p.FlushInterval = 100 * time.Millisecond
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		status, msg := http.StatusBadGateway, "Bad gateway"
		if errors.Is(err, context.DeadlineExceeded) {
			status, msg = http.StatusGatewayTimeout, "Upstream timeout"
		}
		logging.FromContext(r.Context()).Error("upstream_failed", "status", status, "upstream", u.Host, "error", err)

		w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response.Envelope{Success: false, Message: msg})
	}

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()
		p.ServeHTTP(c.Response(), c.Request().WithContext(ctx))
		return nil
	}, nil
}

func rewritePath(p string) string {
	if p == publicPrefix || strings.HasPrefix(p, publicPrefix+"/") {
		return internalPrefix + strings.TrimPrefix(p, publicPrefix)
	}
	return p
}
