package storage

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database/sqlite"

	"ledger/internal/storage/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateDocuments brings the documents table up to date. It uses its own
// connection, opened with the store's dsn so it waits on a busy database
// like the store does, because the migrator closes it when done.
func migrateDocuments(dsn string) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	return migration.Up(migrationsFS, "migrations", "sqlite", driver)
}
