package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/ratelimit"
	"github.com/Skotchmaster/social_platform/pkg/response"
)

type Limiter interface {
	Admit(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RateLimit admits requests per client IP. Blocked requests get 429. When the
// counter store is down and the limiter fails closed the request gets 503.
func RateLimit(l Limiter, now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			d, err := l.Admit(ctx, c.RealIP())
			if err != nil {
				logging.FromContext(ctx).Error("rate_limit_store_failed", "allowed", d.Allowed, "error", err)
				if !d.Allowed {
					return apperr.E(apperr.KindTransient, "service temporarily unavailable", err)
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				secs := int(d.RetryAfter(now()).Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				logging.FromContext(ctx).Warn("rate_limited", "status", http.StatusTooManyRequests, "ip", c.RealIP(), "count", d.Count)
				return response.Fail(c, http.StatusTooManyRequests, "Too many requests")
			}
			return next(c)
		}
	}
}
