// Package schema creates every table the service needs, in foreign-key order.
package schema

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	authrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth/repo"
	msgrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/message/repo"
	socialrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/social/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/repo"
)

type ensurer interface {
	EnsureTable(ctx context.Context) error
}

// Ensure is idempotent.
func Ensure(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		repo ensurer
	}{
		{"users", userrepo.NewUserRepo(db)},
		{"messages", msgrepo.NewMessageRepo(db)},
		{"follows", socialrepo.NewFollowRepo(db)},
		{"likes", socialrepo.NewLikeRepo(db)},
		{"revoked_tokens", authrepo.NewRevokedRepo(db)},
	}
	for _, s := range steps {
		if err := s.repo.EnsureTable(ctx); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	return nil
}
