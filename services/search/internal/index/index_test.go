package index

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeES struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
	exists   bool
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	call := r.Method + " " + r.URL.Path
	f.mu.Lock()
	// The client may probe the root endpoint on its own.
	if r.URL.Path != "/" {
		f.requests = append(f.requests, call)
		f.bodies[call] = string(body)
	}
	exists := f.exists
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/posts":
		if exists {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut && r.URL.Path == "/posts":
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/posts/_doc/"):
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/posts/_doc/missing":
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/posts/_doc/broken":
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"boom"}`)
	case r.Method == http.MethodDelete:
		_, _ = io.WriteString(w, `{"result":"deleted"}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":1},"hits":[{"_source":{"postId":"p1","userId":"u1","content":"hello go","createdAt":"2026-01-02T03:04:05Z"}}]}}`)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{}`)
	}
}

func (f *fakeES) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeES) body(call string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[call]
}

func newIndex(t *testing.T) (*Index, *fakeES) {
	t.Helper()
	fake := &fakeES{bodies: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return New(es, ""), fake
}

func TestEnsure_CreatesMissingIndex(t *testing.T) {
	ix, fake := newIndex(t)
	require.NoError(t, ix.Ensure(context.Background()))
	assert.Equal(t, []string{"HEAD /posts", "PUT /posts"}, fake.calls())
	assert.Contains(t, fake.body("PUT /posts"), `"content":   {"type": "text"}`)
}

func TestEnsure_ExistingIndexIsLeftAlone(t *testing.T) {
	ix, fake := newIndex(t)
	fake.exists = true
	require.NoError(t, ix.Ensure(context.Background()))
	assert.Equal(t, []string{"HEAD /posts"}, fake.calls())
}

func TestPut_UsesPostIDAsDocumentID(t *testing.T) {
	ix, fake := newIndex(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, ix.Put(context.Background(), Post{PostID: "p1", UserID: "u1", Content: "hello", CreatedAt: created}))

	var doc Post
	require.NoError(t, json.Unmarshal([]byte(fake.body("PUT /posts/_doc/p1")), &doc))
	assert.Equal(t, "hello", doc.Content)
	assert.True(t, created.Equal(doc.CreatedAt))
}

func TestDelete_MissingIsDeleted(t *testing.T) {
	ix, _ := newIndex(t)
	assert.NoError(t, ix.Delete(context.Background(), "p1"))
	assert.NoError(t, ix.Delete(context.Background(), "missing"))
	assert.ErrorContains(t, ix.Delete(context.Background(), "broken"), "500")
}

func TestSearch_DecodesHits(t *testing.T) {
	ix, fake := newIndex(t)
	posts, err := ix.Search(context.Background(), "hello", 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].PostID)
	assert.Equal(t, "hello go", posts[0].Content)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.body("POST /posts/_search")), &sent))
	assert.EqualValues(t, 10, sent["size"])
}
