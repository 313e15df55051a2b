package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Driver-neutral constraint errors. Repositories pass driver errors through
// Classify so services only need errors.Is against these.
var (
	ErrNoRows              = sql.ErrNoRows
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// SQLSTATE codes shared by lib/pq and pgx.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Classify maps constraint failures from postgres (lib/pq, pgx) and sqlite
// onto the package sentinels. The original error stays in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyCode(string(pqErr.Code), err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyCode(pgErr.Code, err)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
		}
	}
	return err
}

func classifyCode(code string, err error) error {
	switch code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	}
	return err
}
