package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"ledger/internal/document"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores documents as rows of the documents table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	source := dsn(dbPath)
	db, err := sql.Open("sqlite", source)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateDocuments(source); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// dsn opens write transactions immediately so concurrent load-mutate-save
// cycles queue on the database lock instead of failing on upgrade.
func dsn(dbPath string) string {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + dbPath + "?" + q.Encode()
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements document.Store
func (r *SQLiteRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", key, err)
	}
	return []byte(body), nil
}

// Save implements document.Store
func (r *SQLiteRepository) Save(ctx context.Context, key string, doc []byte) error {
	return r.Update(ctx, key, func([]byte) ([]byte, error) {
		return doc, nil
	})
}

// Update implements document.Store. The whole cycle runs in one immediate
// transaction.
func (r *SQLiteRepository) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		current []byte
		body    string
		version int64
	)
	err = tx.QueryRowContext(ctx, `SELECT body, version FROM documents WHERE key = ?`, key).Scan(&body, &version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load document %s: %w", key, err)
	default:
		current = []byte(body)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (key, body, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, version = documents.version + 1, updated_at = excluded.updated_at`,
		key, string(next), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Document saved to SQLite", "key", key, "version", version+1, "bytes", len(next))
	return nil
}

// Version returns the number of times key has been written, 0 if never.
func (r *SQLiteRepository) Version(ctx context.Context, key string) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM documents WHERE key = ?`, key).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get document version: %w", err)
	}
	return version, nil
}

var _ document.Store = (*SQLiteRepository)(nil)
