package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
)

type stubVerifier struct {
	sub string
	err error
}

func (s stubVerifier) Verify(string) (string, error) { return s.sub, s.err }

func TestVerify(t *testing.T) {
	t.Parallel()

	v, err := Verify(stubVerifier{sub: "u-1"}, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u-1", v.UserID())

	_, err = Verify(stubVerifier{err: errors.New("bad")}, "tok")
	require.Error(t, err)

	_, err = Verify(stubVerifier{}, "tok")
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestVerifiedFrom_ZeroValueIsNotVerified(t *testing.T) {
	t.Parallel()

	_, ok := VerifiedFrom(WithVerified(context.Background(), Verified{}))
	assert.False(t, ok)

	_, ok = VerifiedFrom(context.Background())
	assert.False(t, ok)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	for _, h := range []string{"", "Bearer", "Bearer   ", "Basic abc", "abc"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestRequireForwarded(t *testing.T) {
	t.Parallel()

	e := echo.New()
	h := RequireForwarded()(func(c echo.Context) error {
		f, ok := ForwardedFrom(c)
		require.True(t, ok)
		return c.String(http.StatusOK, f.UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	err := h(e.NewContext(req, rec))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "u-7")
	rec = httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, "u-7", rec.Body.String())
}
