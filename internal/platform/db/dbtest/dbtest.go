// Package dbtest opens migrated throwaway stores for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"carepay/internal/platform/db"
)

// Open returns a fully migrated store in a temp dir, closed on cleanup.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	handle := OpenEmpty(t)
	_, err := db.NewMigrator(handle, db.BaselineVersion, db.LegacyTables, nil).Migrate(context.Background(), db.Steps)
	require.NoError(t, err)
	return handle
}

// OpenEmpty returns an unmigrated store.
func OpenEmpty(t *testing.T) *sql.DB {
	t.Helper()
	handle, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "carepay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	return handle
}
