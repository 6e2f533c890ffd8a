package db

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

// NoLimitMigrations indicates that there is no limit on the number of migrations to run.
const NoLimitMigrations = 0

//go:embed migrations/*.sql
var migrationsFS embed.FS

func migrationSource() *migrate.EmbedFileSystemMigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}
}

// RunMigrations applies every pending migration of the indexer schema.
func RunMigrations(log *logger.Logger, db *sql.DB) error {
	return RunMigrationsExtended(log, db, migrate.Up, NoLimitMigrations)
}

// RunMigrationsExtended is an extended version of RunMigrations that allows
// dir: can be migrate.Up or migrate.Down
// maxMigrations: Will apply at most `max` migrations. Pass 0 for no limit
func RunMigrationsExtended(
	log *logger.Logger,
	db *sql.DB,
	dir migrate.MigrationDirection,
	maxMigrations int,
) error {
	src := migrationSource()

	migs, err := src.FindMigrations()
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	ids := make([]string, 0, len(migs))
	for _, m := range migs {
		ids = append(ids, m.Id)
	}
	list := strings.Join(ids, ", ")

	log.Debugf("running migrations: (max %d/%d) migrations: %s", maxMigrations, len(migs), list)

	n, err := migrate.ExecMax(db, "sqlite3", src, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("error executing migration (max %d/%d) migrations: %s . Err: %w",
			maxMigrations, len(migs), list, err)
	}

	log.Infof("successfully ran %d migrations from migrations: %s", n, list)
	return nil
}

// OpenAndMigrate opens the database at path and brings its schema up to date.
func OpenAndMigrate(log *logger.Logger, path string) (*sql.DB, error) {
	sqlDB, err := NewSQLiteDB(path)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(log, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return sqlDB, nil
}
