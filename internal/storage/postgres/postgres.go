// Package postgres stores documents in a PostgreSQL table through pgx.
//
// Update serialises writers with a transaction-scoped advisory lock keyed by
// the document key, so processes sharing the database never interleave
// their load-mutate-save cycles.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ledger/internal/document"
	"ledger/internal/storage/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RunMigrations applies the embedded migrations through the pgx/v5 driver.
func RunMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("create pgx driver: %w", err)
	}
	return migration.Up(migrationsFS, "migrations", "pgx5", driver)
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM documents WHERE key = $1`, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", key, err)
	}
	return body, nil
}

func (s *Store) Save(ctx context.Context, key string, doc []byte) error {
	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return doc, nil
	})
}

func (s *Store) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock document %s: %w", key, err)
	}

	var current []byte
	err = tx.QueryRow(ctx, `SELECT body FROM documents WHERE key = $1`, key).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("load document %s: %w", key, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	var version int64
	err = tx.QueryRow(ctx, `
		INSERT INTO documents (key, body) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, version = documents.version + 1, updated_at = now()
		RETURNING version`, key, string(next)).Scan(&version)
	if err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit document %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Document saved to Postgres", "key", key, "version", version)
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ document.Store = (*Store)(nil)
