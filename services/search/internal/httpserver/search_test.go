package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/social_platform/pkg/identity"
	"github.com/Skotchmaster/social_platform/services/search/internal/index"
	"github.com/Skotchmaster/social_platform/services/search/internal/service"
)

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, q string, _ int) ([]index.Post, error) {
	return []index.Post{{PostID: "p1", Content: q}}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func get(t *testing.T, path, userID string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	Register(e, &Deps{SearchHandler: &SearchHTTP{Svc: &service.SearchService{Index: stubSearcher{}}}})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set(identity.Header, userID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestSearchPosts(t *testing.T) {
	t.Parallel()

	rec, out := get(t, "/api/search/posts?query=Gophers", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var posts []index.Post
	require.NoError(t, json.Unmarshal(out.Data, &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "gophers", posts[0].Content)
}

func TestSearchPosts_MissingQuery(t *testing.T) {
	t.Parallel()

	rec, out := get(t, "/api/search/posts", "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query is required", out.Message)
}

func TestSearchPosts_RequiresForwardedIdentity(t *testing.T) {
	t.Parallel()

	rec, _ := get(t, "/api/search/posts?query=go", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
