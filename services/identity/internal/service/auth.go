package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	pkg_hash "github.com/Skotchmaster/social_platform/pkg/hash"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/tokens"
	"github.com/Skotchmaster/social_platform/services/identity/internal/models"
	"github.com/Skotchmaster/social_platform/services/identity/internal/repo"
)

var (
	ErrInvalidCredentials = apperr.E(apperr.KindUnauthorized, "invalid credentials", nil)
	ErrUserExists         = apperr.E(apperr.KindConflict, "user already exists", nil)
)

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

type TokenService interface {
	Issue(ctx context.Context, userID string) (*tokens.Pair, error)
	Rotate(ctx context.Context, refresh string) (*tokens.Pair, error)
	Revoke(ctx context.Context, refresh string) error
}

type AuthService struct {
	Users  UserRepo
	Tokens TokenService
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Session struct {
	User   *models.User
	Tokens *tokens.Pair
}

func (in *RegisterInput) normalize() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	switch n := utf8.RuneCountInString(in.Username); {
	case n < 3:
		return apperr.Validation("username must be at least 3 characters")
	case n > 50:
		return apperr.Validation("username must be at most 50 characters")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validatePassword(in.Password)
}

func (in *LoginInput) normalize() error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validatePassword(in.Password)
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email must be a valid address")
	}
	return nil
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < 6 {
		return apperr.Validation("password must be at least 6 characters")
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "identity.register")
	if err := in.normalize(); err != nil {
		l.Warn("register_rejected", "status", 400, "reason", err.Error())
		return nil, err
	}

	pwHash, err := pkg_hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, apperr.Internal("hash password", err)
	}

	user := &models.User{Username: in.Username, Email: in.Email, PasswordHash: pwHash}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExists) {
			l.Warn("register_rejected", "status", 409, "reason", "user already exists")
			return nil, ErrUserExists
		}
		l.Error("register_failed", "status", 503, "error", err)
		return nil, apperr.Transient("service temporarily unavailable", err)
	}

	pair, err := s.Tokens.Issue(ctx, user.ID)
	if err != nil {
		l.Error("register_failed", "reason", "cannot issue tokens", "user_id", user.ID, "error", err)
		return nil, err
	}

	l.Info("user_registered", "user_id", user.ID)
	return &Session{User: user, Tokens: pair}, nil
}

// Login never says whether the email or the password was wrong.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "identity.login")
	if err := in.normalize(); err != nil {
		l.Warn("login_rejected", "status", 400, "reason", err.Error())
		return nil, err
	}

	user, err := s.Users.UserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("login_rejected", "status", 401, "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 503, "error", err)
		return nil, apperr.Transient("service temporarily unavailable", err)
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, in.Password) {
		l.Warn("login_rejected", "status", 401, "reason", "wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	pair, err := s.Tokens.Issue(ctx, user.ID)
	if err != nil {
		l.Error("login_failed", "reason", "cannot issue tokens", "user_id", user.ID, "error", err)
		return nil, err
	}

	l.Info("login_successful", "user_id", user.ID)
	return &Session{User: user, Tokens: pair}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refresh string) (*tokens.Pair, error) {
	if strings.TrimSpace(refresh) == "" {
		return nil, apperr.Validation("refresh token missing")
	}
	return s.Tokens.Rotate(ctx, refresh)
}

func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	if strings.TrimSpace(refresh) == "" {
		return apperr.Validation("refresh token missing")
	}
	if err := s.Tokens.Revoke(ctx, refresh); err != nil {
		logging.FromContext(ctx).Error("logout_failed", "reason", "cannot revoke refresh token", "error", err)
		return err
	}
	return nil
}
