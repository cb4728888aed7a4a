package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/social_platform/pkg/db/dbtest"
	"github.com/Skotchmaster/social_platform/pkg/identity"
	"github.com/Skotchmaster/social_platform/services/post/internal/models"
	"github.com/Skotchmaster/social_platform/services/post/internal/repo"
	"github.com/Skotchmaster/social_platform/services/post/internal/service"
	"github.com/Skotchmaster/social_platform/services/post/internal/transport"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	gdb := dbtest.Open(t, &models.Post{}, &models.OutboxEvent{})
	e := echo.New()
	Register(e, &Deps{PostHandler: &PostHTTP{Svc: &service.PostService{Repo: &repo.GormRepo{DB: gdb}}}})
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, userID string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(identity.Header, userID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestPosts_RequireForwardedIdentity(t *testing.T) {
	t.Parallel()

	e := newServer(t)
	rec, out := do(t, e, http.MethodGet, "/api/posts/all-posts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, out.Success)
}

func TestPosts_Lifecycle(t *testing.T) {
	t.Parallel()

	e := newServer(t)
	owner := uuid.NewString()

	rec, out := do(t, e, http.MethodPost, "/api/posts/create-post", owner, transport.CreatePostRequest{Content: "first post"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Post created successfully", out.Message)
	var created models.Post
	require.NoError(t, json.Unmarshal(out.Data, &created))
	assert.Equal(t, owner, created.UserID)

	rec, out = do(t, e, http.MethodGet, "/api/posts/all-posts?page=1&limit=5", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list transport.PostList
	require.NoError(t, json.Unmarshal(out.Data, &list))
	assert.Equal(t, int64(1), list.TotalPosts)
	assert.Equal(t, 1, list.CurrentPage)

	rec, _ = do(t, e, http.MethodGet, "/api/posts/"+created.ID, owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, e, http.MethodDelete, "/api/posts/"+created.ID, uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = do(t, e, http.MethodDelete, "/api/posts/"+created.ID, owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Post deleted successfully", out.Message)

	rec, out = do(t, e, http.MethodGet, "/api/posts/"+created.ID, owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Post not found", out.Message)
}

func TestCreatePost_RejectsShortContent(t *testing.T) {
	t.Parallel()

	e := newServer(t)
	rec, out := do(t, e, http.MethodPost, "/api/posts/create-post", uuid.NewString(), transport.CreatePostRequest{Content: "no"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, out.Success)
}
