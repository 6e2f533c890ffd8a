// Package dbtest provides migrated throwaway databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/goran-ethernal/FAssetIndexor/internal/db"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	"github.com/stretchr/testify/require"
)

// New returns a fully migrated sqlite database living in a temp dir, closed on cleanup.
func New(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := db.OpenAndMigrate(logger.NewNopLogger(), filepath.Join(t.TempDir(), "fasset.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return sqlDB
}
