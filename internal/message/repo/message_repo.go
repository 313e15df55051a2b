package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/message/entity"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
)

// MessageRepo provides data access for the messages table.
type MessageRepo struct {
	db sqlx.ExtContext
}

func NewMessageRepo(db sqlx.ExtContext) *MessageRepo { return &MessageRepo{db: db} }

// WithTx returns a repo bound to tx.
func (r *MessageRepo) WithTx(tx *sqlx.Tx) *MessageRepo { return &MessageRepo{db: tx} }

// EnsureTable creates the messages table and its author index. Requires users.
func (r *MessageRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS messages (
  id BIGINT PRIMARY KEY,
  text VARCHAR(140) NOT NULL,
  timestamp TIMESTAMP NOT NULL,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE
)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_id_timestamp ON messages(user_id, timestamp)`,
	)
}

// Create inserts m. An unknown author surfaces as database.ErrForeignKeyViolation.
func (r *MessageRepo) Create(ctx context.Context, m *entity.Message) error {
	const q = `INSERT INTO messages (id, text, timestamp, user_id) VALUES (:id, :text, :timestamp, :user_id)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, m)
	return database.Classify(err)
}

// GetByID returns the message or sql.ErrNoRows.
func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*entity.Message, error) {
	var m entity.Message
	q := r.db.Rebind(`SELECT id, text, timestamp, user_id FROM messages WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &m, q, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// Exists reports whether a message with id exists.
func (r *MessageRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM messages WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, q, id); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes the message; its likes cascade.
func (r *MessageRepo) Delete(ctx context.Context, id int64) (int64, error) {
	q := r.db.Rebind(`DELETE FROM messages WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByUser returns a user's messages, newest first.
func (r *MessageRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]entity.Message, error) {
	msgs := []entity.Message{}
	q := r.db.Rebind(`SELECT id, text, timestamp, user_id FROM messages
		WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`)
	err := sqlx.SelectContext(ctx, r.db, &msgs, q, userID, limit)
	return msgs, err
}

// CountByUser returns how many messages userID has written.
func (r *MessageRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM messages WHERE user_id = ?`)
	err := sqlx.GetContext(ctx, r.db, &n, q, userID)
	return n, err
}

// Timeline returns messages written by userID or by anyone userID follows,
// newest first.
func (r *MessageRepo) Timeline(ctx context.Context, userID int64, limit int) ([]entity.AuthoredMessage, error) {
	msgs := []entity.AuthoredMessage{}
	q := r.db.Rebind(`SELECT m.id, m.text, m.timestamp, m.user_id, u.username, u.image_url
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.user_id = ?
		   OR m.user_id IN (SELECT followed_id FROM follows WHERE follower_id = ?)
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?`)
	err := sqlx.SelectContext(ctx, r.db, &msgs, q, userID, userID, limit)
	return msgs, err
}
