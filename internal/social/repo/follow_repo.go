package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	userentity "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
)

// FollowRepo stores follow edges. The primary key indexes
// follower -> followed and idx_follows_followed the reverse direction, so
// both "following" and "followers" are index lookups on the same rows.
type FollowRepo struct {
	db sqlx.ExtContext
}

func NewFollowRepo(db sqlx.ExtContext) *FollowRepo { return &FollowRepo{db: db} }

// WithTx returns a repo bound to tx.
func (r *FollowRepo) WithTx(tx *sqlx.Tx) *FollowRepo { return &FollowRepo{db: tx} }

// EnsureTable creates the follows table. Requires users.
func (r *FollowRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS follows (
  follower_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  followed_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  PRIMARY KEY (follower_id, followed_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_follows_followed ON follows(followed_id, follower_id)`,
	)
}

// Insert adds the edge unless it already exists; inserted reports which.
func (r *FollowRepo) Insert(ctx context.Context, followerID, followedID int64) (inserted bool, err error) {
	q := r.db.Rebind(`INSERT INTO follows (follower_id, followed_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	res, err := r.db.ExecContext(ctx, q, followerID, followedID)
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes the edge if present; deleted reports whether it was.
func (r *FollowRepo) Delete(ctx context.Context, followerID, followedID int64) (deleted bool, err error) {
	q := r.db.Rebind(`DELETE FROM follows WHERE follower_id = ? AND followed_id = ?`)
	res, err := r.db.ExecContext(ctx, q, followerID, followedID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Exists reports whether followerID follows followedID.
func (r *FollowRepo) Exists(ctx context.Context, followerID, followedID int64) (bool, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM follows WHERE follower_id = ? AND followed_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, q, followerID, followedID); err != nil {
		return false, err
	}
	return n > 0, nil
}

const joinedUserColumns = `u.id, u.username, u.email, u.password_hash, u.image_url, u.header_image_url, u.bio, u.location, u.created_at`

// Followers returns the users following userID.
func (r *FollowRepo) Followers(ctx context.Context, userID int64) ([]userentity.User, error) {
	users := []userentity.User{}
	q := r.db.Rebind(`SELECT ` + joinedUserColumns + ` FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.followed_id = ?
		ORDER BY u.username`)
	err := sqlx.SelectContext(ctx, r.db, &users, q, userID)
	return users, err
}

// Following returns the users userID follows.
func (r *FollowRepo) Following(ctx context.Context, userID int64) ([]userentity.User, error) {
	users := []userentity.User{}
	q := r.db.Rebind(`SELECT ` + joinedUserColumns + ` FROM follows f
		JOIN users u ON u.id = f.followed_id
		WHERE f.follower_id = ?
		ORDER BY u.username`)
	err := sqlx.SelectContext(ctx, r.db, &users, q, userID)
	return users, err
}

// CountFollowers returns the number of users following userID.
func (r *FollowRepo) CountFollowers(ctx context.Context, userID int64) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM follows WHERE followed_id = ?`)
	err := sqlx.GetContext(ctx, r.db, &n, q, userID)
	return n, err
}

// CountFollowing returns the number of users userID follows.
func (r *FollowRepo) CountFollowing(ctx context.Context, userID int64) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM follows WHERE follower_id = ?`)
	err := sqlx.GetContext(ctx, r.db, &n, q, userID)
	return n, err
}

// CountInvolving counts edges where userID is on either end.
func (r *FollowRepo) CountInvolving(ctx context.Context, userID int64) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM follows WHERE follower_id = ? OR followed_id = ?`)
	err := sqlx.GetContext(ctx, r.db, &n, q, userID, userID)
	return n, err
}
