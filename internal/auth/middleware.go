package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware attaches the principal named by a bearer token to the request
// context. Requests without a usable token continue anonymously; handlers
// that need a user reject them via Principal.Require.
func Middleware(tokens *TokenService, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p, err := tokens.Verify(r.Context(), token)
			if err != nil {
				logger.Debugw("ignoring bearer token", "path", r.URL.Path, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len("bearer ") || !strings.EqualFold(h[:len("bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[len("bearer "):])
	return token, token != ""
}
