// Package identity carries the authenticated caller from the gateway to the
// services. The gateway proves identity with Verify; services only ever see
// the forwarded header, which the gateway rewrites on every request.
package identity

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
)

// Header is the only channel through which services learn the caller.
const Header = "X-User-Id"

type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// Verified is a caller whose access token passed verification. The zero value
// is not a verified caller.
type Verified struct {
	userID string
}

func (v Verified) UserID() string { return v.userID }

func (v Verified) IsZero() bool { return v.userID == "" }

// Verify checks raw with tv and is the only way to obtain a non-zero Verified.
func Verify(tv TokenVerifier, raw string) (Verified, error) {
	sub, err := tv.Verify(raw)
	if err != nil {
		return Verified{}, err
	}
	if sub == "" {
		return Verified{}, apperr.Unauthorized("invalid or expired token")
	}
	return Verified{userID: sub}, nil
}

type verifiedKey struct{}

func WithVerified(ctx context.Context, v Verified) context.Context {
	return context.WithValue(ctx, verifiedKey{}, v)
}

func VerifiedFrom(ctx context.Context) (Verified, bool) {
	v, ok := ctx.Value(verifiedKey{}).(Verified)
	if !ok || v.IsZero() {
		return Verified{}, false
	}
	return v, true
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Forwarded is the caller as seen by a service behind the gateway.
type Forwarded struct {
	UserID string
}

const forwardedKey = "identity.forwarded"

// RequireForwarded rejects requests without the gateway-set header and stores
// the caller in the echo context.
func RequireForwarded() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := strings.TrimSpace(c.Request().Header.Get(Header))
			if uid == "" {
				return apperr.Unauthorized("authentication required")
			}
			c.Set(forwardedKey, Forwarded{UserID: uid})
			return next(c)
		}
	}
}

func ForwardedFrom(c echo.Context) (Forwarded, bool) {
	f, ok := c.Get(forwardedKey).(Forwarded)
	return f, ok && f.UserID != ""
}
