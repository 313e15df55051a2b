package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/message"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/social"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/utilities"
)

// Prefix is the path every API route is mounted under.
const Prefix = "/warbler-api"

const requestIDHeader = "X-Request-ID"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

type requestIDKey struct{}

// RequestID returns the id RequestIDMiddleware attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware echoes the client's X-Request-ID or generates one.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > 64 {
				id = utilities.NewKSUID()
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			// HSTS only makes sense over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Options carries what RegisterRoutes needs beyond the database.
type Options struct {
	Auth auth.Config
	User user.Config
	IDs  *utilities.IDGenerator
	// Hasher overrides the bcrypt hasher built from User.BcryptCost.
	Hasher user.PasswordHasher
	// Limiter throttles signup and login; nil disables it.
	Limiter *ratelimit.Limiter
}

// RegisterRoutes builds the services and mounts every route on a
// http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, db *sqlx.DB, opts Options) (http.Handler, error) {
	if opts.IDs == nil {
		ids, err := utilities.IDGeneratorFromEnv()
		if err != nil {
			return nil, err
		}
		opts.IDs = ids
	}
	tokens, err := auth.NewTokenService(db, opts.Auth)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}
	users, err := user.NewUserService(db, opts.IDs, opts.Hasher, opts.User, logger)
	if err != nil {
		return nil, fmt.Errorf("user service: %w", err)
	}
	userHandler := user.NewHandler(users, tokens, logger)
	messageHandler := message.NewHandler(message.NewService(db, opts.IDs, logger), logger)
	socialHandler := social.NewHandler(social.NewService(db, logger), logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET "+Prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			logger.Warnw("health check failed", "err", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// identity
	mux.Handle("POST "+Prefix+"/signup", opts.Limiter.Middleware(http.HandlerFunc(userHandler.Signup)))
	mux.Handle("POST "+Prefix+"/login", opts.Limiter.Middleware(http.HandlerFunc(userHandler.Login)))
	mux.HandleFunc("POST "+Prefix+"/logout", userHandler.Logout)
	mux.HandleFunc("GET "+Prefix+"/users", userHandler.List)
	mux.HandleFunc("PATCH "+Prefix+"/users/profile", userHandler.UpdateProfile)
	mux.HandleFunc("POST "+Prefix+"/users/delete", userHandler.Delete)

	// messages
	mux.HandleFunc("POST "+Prefix+"/messages", messageHandler.Create)
	mux.HandleFunc("GET "+Prefix+"/messages/{id}", messageHandler.Get)
	mux.HandleFunc("POST "+Prefix+"/messages/{id}/delete", messageHandler.Delete)
	mux.HandleFunc("GET "+Prefix+"/users/{id}/messages", messageHandler.ListByUser)
	mux.HandleFunc("GET "+Prefix+"/timeline", messageHandler.Timeline)

	// social graph
	mux.HandleFunc("GET "+Prefix+"/users/{id}", socialHandler.Profile)
	mux.HandleFunc("GET "+Prefix+"/users/{id}/following", socialHandler.Following)
	mux.HandleFunc("GET "+Prefix+"/users/{id}/followers", socialHandler.Followers)
	mux.HandleFunc("GET "+Prefix+"/users/{id}/likes", socialHandler.Likes)
	mux.HandleFunc("POST "+Prefix+"/users/follow/{id}", socialHandler.Follow)
	mux.HandleFunc("POST "+Prefix+"/users/stop-following/{id}", socialHandler.Unfollow)
	mux.HandleFunc("POST "+Prefix+"/messages/{id}/like", socialHandler.ToggleLike)
	mux.HandleFunc("DELETE "+Prefix+"/messages/{id}/like", socialHandler.Unlike)

	// The mux sets r.Pattern on the request it is handed, so the metrics
	// middleware must sit directly around it.
	var handler http.Handler = metrics.InstrumentHandler(mux)
	handler = auth.Middleware(tokens, logger)(handler)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler, nil
}
