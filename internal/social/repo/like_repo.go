package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	msgentity "github.com/ovaphlow/pitchfork/service-warbler-go/internal/message/entity"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
)

// LikeRepo stores likes; the composite primary key enforces at most one
// like per (user, message).
type LikeRepo struct {
	db sqlx.ExtContext
}

func NewLikeRepo(db sqlx.ExtContext) *LikeRepo { return &LikeRepo{db: db} }

// WithTx returns a repo bound to tx.
func (r *LikeRepo) WithTx(tx *sqlx.Tx) *LikeRepo { return &LikeRepo{db: tx} }

// EnsureTable creates the likes table. Requires users and messages.
func (r *LikeRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS likes (
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
  PRIMARY KEY (user_id, message_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_likes_message ON likes(message_id)`,
	)
}

// Insert adds the like unless it already exists; inserted reports which.
func (r *LikeRepo) Insert(ctx context.Context, userID, messageID int64) (inserted bool, err error) {
	q := r.db.Rebind(`INSERT INTO likes (user_id, message_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	res, err := r.db.ExecContext(ctx, q, userID, messageID)
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes the like if present; deleted reports whether it was.
func (r *LikeRepo) Delete(ctx context.Context, userID, messageID int64) (deleted bool, err error) {
	q := r.db.Rebind(`DELETE FROM likes WHERE user_id = ? AND message_id = ?`)
	res, err := r.db.ExecContext(ctx, q, userID, messageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Exists reports whether userID likes messageID.
func (r *LikeRepo) Exists(ctx context.Context, userID, messageID int64) (bool, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM likes WHERE user_id = ? AND message_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, q, userID, messageID); err != nil {
		return false, err
	}
	return n > 0, nil
}

// LikedMessages returns the messages userID likes, newest first.
func (r *LikeRepo) LikedMessages(ctx context.Context, userID int64) ([]msgentity.Message, error) {
	msgs := []msgentity.Message{}
	q := r.db.Rebind(`SELECT m.id, m.text, m.timestamp, m.user_id FROM likes l
		JOIN messages m ON m.id = l.message_id
		WHERE l.user_id = ?
		ORDER BY m.timestamp DESC, m.id DESC`)
	err := sqlx.SelectContext(ctx, r.db, &msgs, q, userID)
	return msgs, err
}

// CountByUser returns how many likes userID has given.
func (r *LikeRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM likes WHERE user_id = ?`)
	err := sqlx.GetContext(ctx, r.db, &n, q, userID)
	return n, err
}

// CountByMessage returns how many users like messageID.
func (r *LikeRepo) CountByMessage(ctx context.Context, messageID int64) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM likes WHERE message_id = ?`)
	err := sqlx.GetContext(ctx, r.db, &n, q, messageID)
	return n, err
}
