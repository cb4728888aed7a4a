package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/social_platform/pkg/identity"
	loggingmw "github.com/Skotchmaster/social_platform/pkg/middleware/logging"
	"github.com/Skotchmaster/social_platform/pkg/response"
)

type Deps struct {
	PostHandler *PostHTTP
	Ready       func(ctx context.Context) error
	Logger      *slog.Logger
}

func Register(e *echo.Echo, d *Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	e.HTTPErrorHandler = response.ErrorHandler
	e.Use(ecM.Recover(), loggingmw.RequestLogger(d.Logger))

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return response.Fail(c, http.StatusServiceUnavailable, "not ready")
			}
		}
		return c.NoContent(http.StatusOK)
	})

	posts := e.Group("/api/posts", identity.RequireForwarded())
	posts.POST("/create-post", d.PostHandler.CreatePost)
	posts.GET("/all-posts", d.PostHandler.GetPosts)
	posts.GET("/:id", d.PostHandler.GetPost)
	posts.DELETE("/:id", d.PostHandler.DeletePost)
}
