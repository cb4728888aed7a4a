package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/social_platform/pkg/identity"
	"github.com/Skotchmaster/social_platform/pkg/ratelimit"
	"github.com/Skotchmaster/social_platform/pkg/response"
	"github.com/Skotchmaster/social_platform/pkg/tokens"
)

var secret = []byte("gateway-test-secret")

type seen struct {
	Path   string `json:"path"`
	UserID string `json:"userId"`
}

type upstream struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	if h == nil {
		h = func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(seen{Path: r.URL.Path, UserID: r.Header.Get(identity.Header)})
		}
	}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

type env struct {
	e        *echo.Echo
	upstream *upstream
	mr       *miniredis.Miniredis
}

type option func(*Deps, *miniredis.Miniredis, *redis.Client)

func withLimit(n int, policy ratelimit.FailurePolicy) option {
	return func(d *Deps, _ *miniredis.Miniredis, rdb *redis.Client) {
		d.Limiter = ratelimit.New(rdb, ratelimit.Config{Prefix: "rl:global", Limit: n, Window: time.Minute, Policy: policy, Timeout: 50 * time.Millisecond}, nil)
	}
}

func withCreatePostLimit(n int) option {
	return func(d *Deps, _ *miniredis.Miniredis, rdb *redis.Client) {
		d.CreatePostLimiter = ratelimit.New(rdb, ratelimit.Config{Prefix: "rl:create-post", Limit: n, Window: time.Minute}, nil)
	}
}

func withTrustedProxies(t *testing.T, cidrs ...string) option {
	t.Helper()
	ipx, err := ClientIP(cidrs)
	require.NoError(t, err)
	return func(d *Deps, _ *miniredis.Miniredis, _ *redis.Client) {
		d.IPExtractor = ipx
	}
}

func newEnv(t *testing.T, h http.HandlerFunc, timeout time.Duration, opts ...option) *env {
	t.Helper()

	up := newUpstream(t, h)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	d := &Deps{
		IdentityURL:     up.srv.URL,
		PostURL:         up.srv.URL,
		MediaURL:        up.srv.URL,
		SearchURL:       up.srv.URL,
		Verifier:        tokens.NewVerifier(secret, nil),
		UpstreamTimeout: timeout,
		Ready:           func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	for _, o := range opts {
		o(d, mr, rdb)
	}

	e := echo.New()
	require.NoError(t, Register(e, d))
	return &env{e: e, upstream: up, mr: mr}
}

func accessToken(t *testing.T, sub string) string {
	t.Helper()
	now := time.Now()
	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, tokens.AccessClaims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	raw, err := tkn.SignedString(secret)
	require.NoError(t, err)
	return raw
}

func (e *env) do(method, path, token string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "203.0.113.7:4000"
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.e.ServeHTTP(rec, req)
	return rec
}

func decodeSeen(t *testing.T, body io.Reader) seen {
	t.Helper()
	var s seen
	require.NoError(t, json.NewDecoder(body).Decode(&s))
	return s
}

func decodeEnvelope(t *testing.T, body io.Reader) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

func TestGateway_OpenRouteRewritesPathAndDropsSpoofedHeader(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second)
	rec := env.do(http.MethodPost, "/v1/auth/login", "", map[string]string{identity.Header: "attacker"})

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeSeen(t, rec.Body)
	assert.Equal(t, "/api/auth/login", got.Path)
	assert.Empty(t, got.UserID)
}

func TestGateway_ProtectedRouteRequiresToken(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second)
	for _, tok := range []string{"", "garbage"} {
		rec := env.do(http.MethodGet, "/v1/posts/all-posts", tok, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, decodeEnvelope(t, rec.Body).Success)
	}
	assert.Zero(t, env.upstream.hits.Load())
}

func TestGateway_ForwardsVerifiedIdentityOnly(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second)
	rec := env.do(http.MethodGet, "/v1/posts/all-posts?page=2", accessToken(t, "user-42"), map[string]string{identity.Header: "someone-else"})

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeSeen(t, rec.Body)
	assert.Equal(t, "/api/posts/all-posts", got.Path)
	assert.Equal(t, "user-42", got.UserID)
}

func TestGateway_RoutesEveryService(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second)
	tok := accessToken(t, "u1")
	for path, want := range map[string]string{
		"/v1/media/get":          "/api/media/get",
		"/v1/search/posts":       "/api/search/posts",
		"/v1/posts/abc":          "/api/posts/abc",
		"/v1/auth/refresh-token": "/api/auth/refresh-token",
	} {
		rec := env.do(http.MethodGet, path, tok, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, decodeSeen(t, rec.Body).Path)
	}
}

func TestGateway_UnmatchedIs404(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second)
	rec := env.do(http.MethodGet, "/v1/unknown", accessToken(t, "u1"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, env.upstream.hits.Load())
}

func TestGateway_RateLimitBlocksAfterCeiling(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second, withLimit(2, ratelimit.FailClosed))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = env.do(http.MethodPost, "/v1/auth/login", "", nil)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests", decodeEnvelope(t, last.Body).Message)
	assert.Equal(t, int32(2), env.upstream.hits.Load())
}

func TestGateway_RateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second, withLimit(2, ratelimit.FailClosed))

	var codes []int
	for i := range 5 {
		rec := env.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
			echo.HeaderXForwardedFor: fmt.Sprintf("10.0.0.%d", i),
			echo.HeaderXRealIP:       fmt.Sprintf("10.0.1.%d", i),
		})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	assert.Equal(t, int32(2), env.upstream.hits.Load())
}

func TestGateway_RateLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second, withLimit(1, ratelimit.FailClosed), withTrustedProxies(t, "203.0.113.0/24"))
	first := map[string]string{echo.HeaderXForwardedFor: "198.51.100.1"}
	second := map[string]string{echo.HeaderXForwardedFor: "198.51.100.2"}

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/v1/auth/login", "", first).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/v1/auth/login", "", second).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/v1/auth/login", "", first).Code)
}

func TestClientIP_RejectsBadRange(t *testing.T) {
	_, err := ClientIP([]string{"not-a-cidr"})
	assert.Error(t, err)
}

func TestGateway_RateLimitRunsBeforeRouting(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second, withLimit(1, ratelimit.FailClosed))
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/nowhere", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodGet, "/nowhere", "", nil).Code)
}

func TestGateway_CreatePostHasStricterLimit(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second, withLimit(10, ratelimit.FailClosed), withCreatePostLimit(1))
	tok := accessToken(t, "u1")

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/v1/posts/create-post", tok, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/v1/posts/create-post", tok, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/v1/posts/all-posts", tok, nil).Code)
}

func TestGateway_LimiterStoreDown(t *testing.T) {
	t.Parallel()

	closed := newEnv(t, nil, time.Second, withLimit(5, ratelimit.FailClosed))
	closed.mr.Close()
	rec := closed.do(http.MethodPost, "/v1/auth/login", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, closed.upstream.hits.Load())

	open := newEnv(t, nil, time.Second, withLimit(5, ratelimit.FailOpen))
	open.mr.Close()
	rec = open.do(http.MethodPost, "/v1/auth/login", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_UpstreamDownIs502(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second)
	env.upstream.srv.Close()

	rec := env.do(http.MethodPost, "/v1/auth/login", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, decodeEnvelope(t, rec.Body).Success)
}

func TestGateway_SlowUpstreamIs504(t *testing.T) {
	t.Parallel()

	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	env := newEnv(t, slow, 50*time.Millisecond)

	rec := env.do(http.MethodPost, "/v1/auth/login", "", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, int32(1), env.upstream.hits.Load(), "no retries")
}

func TestGateway_Health(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, time.Second, withLimit(1, ratelimit.FailClosed))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/live", "", nil).Code)
	}
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/ready", "", nil).Code)

	env.mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/health/ready", "", nil).Code)
}

func TestRewritePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/api/posts/1", rewritePath("/v1/posts/1"))
	assert.Equal(t, "/api", rewritePath("/v1"))
	assert.Equal(t, "/v10/x", rewritePath("/v10/x"))
}
