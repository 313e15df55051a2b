// Package ratelimit throttles credential endpoints per client IP using
// fixed-window counters in Redis.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	MaxRequests int
	Window      time.Duration
}

// ConfigFromEnv reads REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, RATE_LIMIT_MAX and
// RATE_LIMIT_WINDOW_SECONDS. An empty Addr disables rate limiting.
func ConfigFromEnv() Config {
	cfg := Config{
		Addr:        os.Getenv("REDIS_ADDR"),
		Password:    os.Getenv("REDIS_PASSWORD"),
		MaxRequests: 10,
		Window:      time.Minute,
	}
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil && v >= 0 {
		cfg.DB = v
	}
	if v, err := strconv.Atoi(os.Getenv("RATE_LIMIT_MAX")); err == nil && v > 0 {
		cfg.MaxRequests = v
	}
	if v, err := strconv.Atoi(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); err == nil && v > 0 {
		cfg.Window = time.Duration(v) * time.Second
	}
	return cfg
}

// Enabled reports whether a Redis address is configured.
func (c Config) Enabled() bool { return c.Addr != "" }

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Limiter allows at most max requests per key within each window.
type Limiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	logger *zap.SugaredLogger
}

func New(client *redis.Client, max int, window time.Duration, logger *zap.SugaredLogger) *Limiter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Limiter{client: client, max: int64(max), window: window, logger: logger}
}

// Allow counts one request for key and reports whether it is within the limit.
// The window starts with the first request for key; later requests, rejected
// ones included, do not extend it.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := "ratelimit:" + key
	pipe := l.client.TxPipeline()
	pipe.SetNX(ctx, k, 0, l.window)
	incr := pipe.Incr(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= l.max, nil
}

// Middleware rejects requests over the limit with 429. A nil Limiter passes
// everything through; Redis failures are logged and the request allowed.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := l.Allow(r.Context(), clientIP(r))
		if err != nil {
			l.logger.Errorw("rate limit check failed", "path", r.URL.Path, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
