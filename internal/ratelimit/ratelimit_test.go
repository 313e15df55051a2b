package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestNilLimiterPassesThrough(t *testing.T) {
	var l *Limiter
	rec := httptest.NewRecorder()
	l.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRedisDownFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	l := New(client, 1, time.Minute, nil)

	rec := httptest.NewRecorder()
	l.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientIP(req))
	req.RemoteAddr = "weird"
	assert.Equal(t, "weird", clientIP(req))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RATE_LIMIT_MAX", "3")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	cfg := ConfigFromEnv()
	assert.False(t, cfg.Enabled())
	assert.Equal(t, 3, cfg.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Window)
}
