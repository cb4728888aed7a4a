package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/response"
	"github.com/Skotchmaster/social_platform/pkg/tokens"
	"github.com/Skotchmaster/social_platform/services/identity/internal/service"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

type sessionResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	*tokens.Pair
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return apperr.Validation("invalid body")
	}

	sess, err := h.Svc.Register(ctx, req)
	if err != nil {
		return err
	}

	h.setCookies(c, sess.Tokens)
	return response.OK(c, http.StatusCreated, "User registered successfully", sessionResponse{
		UserID:   sess.User.ID,
		Username: sess.User.Username,
		Email:    sess.User.Email,
		Pair:     sess.Tokens,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req service.LoginInput
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return apperr.Validation("invalid body")
	}

	sess, err := h.Svc.Login(ctx, req)
	if err != nil {
		return err
	}

	h.setCookies(c, sess.Tokens)
	return response.OK(c, http.StatusOK, "User logged in successfully", sessionResponse{
		UserID: sess.User.ID,
		Pair:   sess.Tokens,
	})
}

func (h *AuthHTTP) RefreshToken(c echo.Context) error {
	ctx := c.Request().Context()

	pair, err := h.Svc.Refresh(ctx, refreshFrom(c))
	if err != nil {
		c.SetCookie(deleteCookie(refreshCookie, "/"))
		return err
	}

	h.setCookies(c, pair)
	return response.OK(c, http.StatusOK, "Token refreshed", pair)
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if err := h.Svc.Logout(ctx, refreshFrom(c)); err != nil {
		return err
	}

	c.SetCookie(deleteCookie(refreshCookie, "/"))
	c.SetCookie(deleteCookie(accessCookie, "/"))
	l.Info("successful_logout")
	return response.OK(c, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHTTP) setCookies(c echo.Context, p *tokens.Pair) {
	c.SetCookie(createCookie(accessCookie, p.AccessToken, "/", p.AccessExpiresAt))
	c.SetCookie(createCookie(refreshCookie, p.RefreshToken, "/", p.RefreshExpiresAt))
}

// refreshFrom reads the refresh token from the JSON body, falling back to the
// cookie set at login.
func refreshFrom(c echo.Context) string {
	var req refreshRequest
	_ = c.Bind(&req)
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	if ck, err := c.Cookie(refreshCookie); err == nil {
		return ck.Value
	}
	return ""
}
