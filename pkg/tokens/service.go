package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/logging"
)

const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour

	refreshBytes = 32
)

// ErrRefreshNotFound is returned by RefreshStore.Consume when no row was removed.
var ErrRefreshNotFound = errors.New("refresh token not found")

type RefreshRecord struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// RefreshStore persists refresh tokens by hash. Consume must delete and
// return the record atomically: of two concurrent calls with the same hash at
// most one may succeed.
type RefreshStore interface {
	Save(ctx context.Context, tokenHash string, rec RefreshRecord) error
	Consume(ctx context.Context, tokenHash string) (*RefreshRecord, error)
	Delete(ctx context.Context, tokenHash string) error
}

type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type Service struct {
	*Verifier
	store      RefreshStore
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type Option func(*Service)

func WithTTL(access, refresh time.Duration) Option {
	return func(s *Service) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

func NewService(secret []byte, store RefreshStore, clock clockwork.Clock, opts ...Option) *Service {
	s := &Service{
		Verifier:   NewVerifier(secret, clock),
		store:      store,
		accessTTL:  AccessTTL,
		refreshTTL: RefreshTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue starts a new session for userID.
func (s *Service) Issue(ctx context.Context, userID string) (*Pair, error) {
	return s.issue(ctx, userID, uuid.NewString())
}

func (s *Service) issue(ctx context.Context, userID, sessionID string) (*Pair, error) {
	now := s.clock.Now().UTC()

	accessExp := now.Add(s.accessTTL)
	access, err := s.signAccess(userID, now, accessExp)
	if err != nil {
		return nil, apperr.Internal("sign access token", err)
	}

	refresh, err := newOpaqueToken(refreshBytes)
	if err != nil {
		return nil, apperr.Internal("generate refresh token", err)
	}
	refreshExp := now.Add(s.refreshTTL)

	rec := RefreshRecord{UserID: userID, SessionID: sessionID, ExpiresAt: refreshExp}
	if err := s.store.Save(ctx, HashRefresh(refresh), rec); err != nil {
		return nil, apperr.Transient("store refresh token", err)
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) signAccess(userID string, now, exp time.Time) (string, error) {
	claims := AccessClaims{
		Type: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Rotate consumes refresh and issues a new pair for the same session.
func (s *Service) Rotate(ctx context.Context, refresh string) (*Pair, error) {
	l := logging.FromContext(ctx).With("svc", "tokens.rotate")
	if refresh == "" {
		return nil, ErrUnauthorized
	}

	rec, err := s.store.Consume(ctx, HashRefresh(refresh))
	if err != nil {
		if errors.Is(err, ErrRefreshNotFound) {
			l.Warn("rotate_rejected", "reason", "unknown or already used refresh token")
			return nil, ErrUnauthorized
		}
		return nil, apperr.Transient("consume refresh token", err)
	}
	if !s.clock.Now().Before(rec.ExpiresAt) {
		l.Warn("rotate_rejected", "reason", "refresh token expired", "user_id", rec.UserID)
		return nil, ErrUnauthorized
	}

	return s.issue(ctx, rec.UserID, rec.SessionID)
}

// Revoke deletes refresh if it exists. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, refresh string) error {
	if refresh == "" {
		return nil
	}
	if err := s.store.Delete(ctx, HashRefresh(refresh)); err != nil {
		return apperr.Transient("revoke refresh token", err)
	}
	return nil
}
