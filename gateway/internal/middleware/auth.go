package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/identity"
	"github.com/Skotchmaster/social_platform/pkg/logging"
)

const accessCookie = "accessToken"

// Authenticate verifies the access token from the Authorization header, or
// the accessToken cookie, and stores the caller in the request context.
func Authenticate(v identity.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := identity.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				if ck, err := c.Cookie(accessCookie); err == nil && ck.Value != "" {
					raw, ok = ck.Value, true
				}
			}
			if !ok {
				return apperr.Unauthorized("authentication required")
			}

			who, err := identity.Verify(v, raw)
			if err != nil {
				logging.FromContext(c.Request().Context()).Warn("auth_rejected", "status", 401, "reason", "invalid token")
				return apperr.Unauthorized("invalid or expired token")
			}

			ctx := identity.WithVerified(c.Request().Context(), who)
			ctx = logging.IntoContext(ctx, logging.FromContext(ctx).With("user_id", who.UserID()))
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
