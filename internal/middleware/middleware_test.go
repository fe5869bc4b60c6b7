package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/internal/session"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

func request(method, path, remote string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = remote
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(noContent)

	r := request(http.MethodOptions, "/api/entries", "1.2.3.4:1")
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", "DELETE")
	rec := serve(h, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	r = request(http.MethodGet, "/api/entries", "1.2.3.4:1")
	r.Header.Set("Origin", "https://evil.example.com")
	rec = serve(h, r)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeadersAndHostCheck(t *testing.T) {
	rec := serve(SecurityHeaders(noContent), request("GET", "/", "1.2.3.4:1"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	h := HostCheck("api.example.com")(noContent)
	r := request("GET", "/", "1.2.3.4:1")
	r.Host = "API.example.com:443"
	assert.Equal(t, http.StatusNoContent, serve(h, r).Code)
	r.Host = "other.example.com"
	assert.Equal(t, http.StatusForbidden, serve(h, r).Code)

	assert.Equal(t, http.StatusNoContent, serve(HostCheck("")(noContent), r).Code)
}

func fixedNow(s *limiterSet, at time.Time) *time.Time {
	now := at
	s.now = func() time.Time { return now }
	return &now
}

func TestGlobalRateLimit(t *testing.T) {
	sec := NewSecurity()
	fixedNow(sec.global, time.Unix(1_700_000_000, 0))
	h := sec.GlobalRateLimit(noContent)

	for i := 0; i < globalRateLimitBurst; i++ {
		require.Equal(t, http.StatusNoContent, serve(h, request("GET", "/", "10.0.0.1:5")).Code, "request %d", i)
	}
	rec := serve(h, request("GET", "/", "10.0.0.1:6"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Too many requests. Please slow down.","code":"RATE_LIMITED"}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, serve(h, request("GET", "/", "10.0.0.2:5")).Code, "other clients unaffected")
}

func TestLoginRateLimitOnlyOnLogin(t *testing.T) {
	sec := NewSecurity()
	fixedNow(sec.login, time.Unix(1_700_000_000, 0))
	h := sec.LoginRateLimit(noContent)

	for i := 0; i < loginRateLimitBurst; i++ {
		require.Equal(t, http.StatusNoContent, serve(h, request("POST", "/api/auth/login", "10.0.0.1:5")).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(h, request("POST", "/api/auth/login", "10.0.0.1:5")).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, request("GET", "/api/entries", "10.0.0.1:5")).Code)
}

func TestLimiterSetSweep(t *testing.T) {
	s := newLimiterSet(1, 1)
	now := fixedNow(s, time.Unix(1_700_000_000, 0))
	s.allow("a")
	*now = now.Add(10 * time.Minute)
	s.allow("b")
	*now = now.Add(25 * time.Minute)

	assert.Equal(t, 1, s.sweep(limiterTTL))
	assert.Equal(t, 1, s.len())
}

func TestSecurityRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- NewSecurity().Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRedisRateLimitBlocks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := RedisRateLimit(client, RedisRateLimitConfig{Window: time.Minute, MaxRequests: 3, BlockFor: time.Hour})(noContent)
	for i := 0; i < 3; i++ {
		rec := serve(h, request("GET", "/", "10.0.0.9:1"))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Equal(t, "2", serve(h, request("GET", "/", "10.0.0.8:1")).Header().Get("X-RateLimit-Remaining"))

	rec := serve(h, request("GET", "/", "10.0.0.9:1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, mr.Exists(BlockedIPKeyPrefix+"10.0.0.9"))
	assert.Equal(t, time.Minute, mr.TTL(RateLimitKeyPrefix+"10.0.0.9"))

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, request("GET", "/", "10.0.0.9:1")).Code, "still blocked")
	mr.FastForward(time.Hour)
	assert.Equal(t, http.StatusNoContent, serve(h, request("GET", "/", "10.0.0.9:1")).Code)
}

func TestRedisRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	h := RedisRateLimit(client, DefaultRedisRateLimit())(noContent)
	assert.Equal(t, http.StatusNoContent, serve(h, request("GET", "/", "10.0.0.9:1")).Code)
}

func TestUploadRateLimit(t *testing.T) {
	h := UploadRateLimit(2)(noContent)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusNoContent, serve(h, request("POST", "/api/uploads", "10.1.1.1:1")).Code)
	}
	rec := serve(h, request("POST", "/api/uploads", "10.1.1.1:2"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestSummaryLimiterKeysByUser(t *testing.T) {
	l := NewSummaryLimiter()
	fixedNow(l.set, time.Unix(1_700_000_000, 0))
	h := l.Limit(noContent)

	withUser := func(id uuid.UUID) *http.Request {
		r := request("POST", "/api/entries/1/summary", "10.0.0.1:1")
		return r.WithContext(session.NewContext(r.Context(), &session.Context{User: models.User{ID: id}}))
	}
	alice, bob := uuid.New(), uuid.New()
	for i := 0; i < summaryBurst; i++ {
		require.Equal(t, http.StatusNoContent, serve(h, withUser(alice)).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(h, withUser(alice)).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, withUser(bob)).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, request("GET", "/api/entries/1/summary", "10.0.0.1:1")).Code)
}

type stubAuth map[string]models.User

func (s stubAuth) Authenticate(_ context.Context, token string) (models.User, error) {
	u, ok := s[token]
	if !ok {
		return models.User{}, apperr.New(apperr.CodeUnauthorized)
	}
	return u, nil
}

func TestBearerToken(t *testing.T) {
	r := request("GET", "/ws/events?token=q", "1.1.1.1:1")
	assert.Equal(t, "q", BearerToken(r))
	r.Header.Set("Authorization", "Bearer  h ")
	assert.Equal(t, "h", BearerToken(r))
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "q", BearerToken(r))
}

func TestRequireSession(t *testing.T) {
	user := models.User{ID: uuid.New(), Email: "a@b.c"}
	manager := session.NewManager(entries.NewMemoryPersister(), blob.NewMemoryStore())
	var got *session.Context
	h := RequireSession(stubAuth{"good": user}, manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = session.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serve(h, request("GET", "/api/entries", "1.1.1.1:1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)

	r := request("GET", "/api/entries", "1.1.1.1:1")
	r.Header.Set("Authorization", "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code)

	r.Header.Set("Authorization", "Bearer good")
	require.Equal(t, http.StatusNoContent, serve(h, r).Code)
	require.NotNil(t, got)
	assert.Equal(t, user.ID.String(), got.UserID())
	assert.Equal(t, "good", got.Token)
	require.NotNil(t, got.Workspace)
	assert.Equal(t, user.ID.String(), got.Workspace.UserID)
	assert.Equal(t, 1, manager.Len())
}
