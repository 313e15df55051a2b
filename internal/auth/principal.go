package auth

import (
	"context"
	"errors"
)

var (
	ErrNotAuthenticated = errors.New("access unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
)

// Principal identifies the user an operation acts on behalf of.
// The zero value is an anonymous caller.
type Principal struct {
	UserID int64
}

// Authenticated reports whether the principal carries a user.
func (p Principal) Authenticated() bool { return p.UserID != 0 }

// Require returns ErrNotAuthenticated for anonymous principals.
func (p Principal) Require() error {
	if !p.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, or an anonymous one.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
