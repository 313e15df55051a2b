package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
)

// RevokedRepo stores the IDs of logged-out tokens until they would have
// expired anyway.
type RevokedRepo struct {
	db *sqlx.DB
}

func NewRevokedRepo(db *sqlx.DB) *RevokedRepo {
	return &RevokedRepo{db: db}
}

// EnsureTable creates the revoked_tokens table if not exists (idempotent).
func (r *RevokedRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS revoked_tokens (
  jti TEXT PRIMARY KEY,
  user_id BIGINT NOT NULL,
  expires_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires_at ON revoked_tokens(expires_at)`,
	)
}

// Save records a revoked token. Revoking the same token twice is a no-op.
func (r *RevokedRepo) Save(ctx context.Context, jti string, userID int64, expiresAt time.Time) error {
	q := r.db.Rebind(`INSERT INTO revoked_tokens (jti, user_id, expires_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`)
	_, err := r.db.ExecContext(ctx, q, jti, userID, expiresAt.UTC())
	return err
}

// Exists reports whether jti has been revoked.
func (r *RevokedRepo) Exists(ctx context.Context, jti string) (bool, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM revoked_tokens WHERE jti = ?`)
	if err := r.db.GetContext(ctx, &n, q, jti); err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpired drops entries whose tokens have expired by now.
func (r *RevokedRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	q := r.db.Rebind(`DELETE FROM revoked_tokens WHERE expires_at < ?`)
	res, err := r.db.ExecContext(ctx, q, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
