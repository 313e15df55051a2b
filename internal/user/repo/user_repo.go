package repo

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
)

const userColumns = `id, username, email, password_hash, image_url, header_image_url, bio, location, created_at`

// UserRepo provides data access for users table using sqlx.
// It runs against the pool or, via WithTx, inside a caller's transaction.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

// WithTx returns a repo bound to tx.
func (r *UserRepo) WithTx(tx *sqlx.Tx) *UserRepo { return &UserRepo{db: tx} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  username VARCHAR(64) NOT NULL UNIQUE,
  email VARCHAR(254) NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  image_url TEXT NOT NULL,
  header_image_url TEXT NOT NULL,
  bio TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL
)`,
	)
}

// Create inserts a new user row. Duplicate username/email surfaces as
// database.ErrUniqueViolation.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :username, :email, :password_hash, :image_url, :header_image_url, :bio, :location, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, u)
	return database.Classify(err)
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByUsername fetches by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	var u entity.User
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE username = ?`)
	if err := sqlx.GetContext(ctx, r.db, &u, q, username); err != nil {
		return nil, err
	}
	return &u, nil
}

// Exists reports whether a user with id exists.
func (r *UserRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(1) FROM users WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, q, id); err != nil {
		return false, err
	}
	return n > 0, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns users ordered by username, optionally filtered by a
// case-insensitive username substring. Wildcards in search match literally.
func (r *UserRepo) List(ctx context.Context, search string, limit int) ([]entity.User, error) {
	users := []entity.User{}
	if search == "" {
		q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users ORDER BY username LIMIT ?`)
		err := sqlx.SelectContext(ctx, r.db, &users, q, limit)
		return users, err
	}
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE LOWER(username) LIKE ? ESCAPE '\' ORDER BY username LIMIT ?`)
	pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
	err := sqlx.SelectContext(ctx, r.db, &users, q, pattern, limit)
	return users, err
}

// Count returns the number of users.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(1) FROM users`)
	return n, err
}

// Update writes the mutable profile columns and returns rows affected.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) (int64, error) {
	const q = `UPDATE users SET username = :username, email = :email, image_url = :image_url,
		header_image_url = :header_image_url, bio = :bio, location = :location
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, u)
	if err != nil {
		return 0, database.Classify(err)
	}
	return res.RowsAffected()
}

// Delete removes the user; owned messages, follows and likes go with it
// through ON DELETE CASCADE.
func (r *UserRepo) Delete(ctx context.Context, id int64) (int64, error) {
	q := r.db.Rebind(`DELETE FROM users WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
