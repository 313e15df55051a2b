package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/ratelimit"
)

func newLimiter(t *testing.T, max int, window time.Duration) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return ratelimit.New(client, max, window, nil), mr
}

func serve(l *ratelimit.Limiter, remote string) *httptest.ResponseRecorder {
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAllow_CountsWithinWindow(t *testing.T) {
	l, mr := newLimiter(t, 2, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	// other keys have their own counter
	ok, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 10*time.Second, mr.TTL("ratelimit:10.0.0.1"))
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	l, _ := newLimiter(t, 2, 30*time.Second)

	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.1:1001").Code)

	rec := serve(l, "10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.9:1000").Code)
}

func TestMiddleware_WindowResets(t *testing.T) {
	l, mr := newLimiter(t, 2, 10*time.Second)

	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(l, "10.0.0.1:1").Code)

	mr.FastForward(10 * time.Second)
	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.1:1").Code)
}

func TestMiddleware_RetriesDoNotExtendWindow(t *testing.T) {
	l, mr := newLimiter(t, 2, 10*time.Second)

	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.1:1").Code)

	// blocked client retrying every 6s within a 10s window
	mr.FastForward(6 * time.Second)
	assert.Equal(t, http.StatusTooManyRequests, serve(l, "10.0.0.1:1").Code)
	assert.Equal(t, 4*time.Second, mr.TTL("ratelimit:10.0.0.1"))

	mr.FastForward(4 * time.Second)
	assert.Equal(t, http.StatusNoContent, serve(l, "10.0.0.1:1").Code)
	assert.Equal(t, 10*time.Second, mr.TTL("ratelimit:10.0.0.1"))
}
