package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"

	loggingmw "github.com/Skotchmaster/social_platform/pkg/middleware/logging"
)

// Common runs before routing so rejected and unmatched requests are logged
// with the same request id as forwarded ones.
func Common(log *slog.Logger) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		ecM.Recover(),
		loggingmw.RequestLogger(log),
		ecM.Secure(),
	}
}
