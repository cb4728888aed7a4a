package tokens

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
)

// ErrUnauthorized is returned for every access or refresh token problem.
// Expired, forged and unknown tokens are deliberately indistinguishable.
var ErrUnauthorized = apperr.E(apperr.KindUnauthorized, "invalid or expired token", nil)

// Verifier checks access tokens with the shared HS256 secret. It needs no
// store, which lets the gateway verify locally.
type Verifier struct {
	secret []byte
	clock  clockwork.Clock
}

func NewVerifier(secret []byte, clock clockwork.Clock) *Verifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Verifier{secret: secret, clock: clock}
}

// Verify returns the subject of a valid access token.
func (v *Verifier) Verify(raw string) (string, error) {
	if raw == "" {
		return "", ErrUnauthorized
	}

	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil || !tkn.Valid {
		return "", ErrUnauthorized
	}
	if claims.Type != typeAccess || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}
