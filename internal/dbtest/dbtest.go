// Package dbtest opens throwaway in-memory databases with the full schema.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/utilities"
)

// Open returns a fresh sqlite database private to t, closed on cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", utilities.NewKSUID())
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, DSN: dsn, Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, schema.Ensure(context.Background(), db))
	return db
}

// IDs returns a snowflake generator for tests.
func IDs(t testing.TB) *utilities.IDGenerator {
	t.Helper()
	ids, err := utilities.NewIDGenerator(1)
	require.NoError(t, err)
	return ids
}

// Logger discards everything.
func Logger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
