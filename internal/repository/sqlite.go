package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
	_ "modernc.org/sqlite"
)

// SQLite keeps the templates at a single table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dataDir. ":memory:" opens an in-memory database.
func OpenSQLite(dataDir string) (*SQLite, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("fail to create the data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "lazytemplate.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("fail to open the database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("fail to ping the database: %w", err)
	}

	// One connection, otherwise writes fail with "database is locked" and every connection
	// to ":memory:" gets its own database.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("fail to run '%s': %w", pragma, err)
		}
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS templates (
		name       TEXT PRIMARY KEY,
		payload    BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("fail to create the templates table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get the payload at the key. A missing key is returned as nil.
func (s *SQLite) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "SQLite.Get")
	defer span.Finish()

	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM templates WHERE name = ?", key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail to query the key '%s': %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

// Put the payload at the key, replacing the previous one.
func (s *SQLite) Put(ctx context.Context, key string, payload io.Reader) error {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "SQLite.Put")
	defer span.Finish()

	content, err := io.ReadAll(payload)
	if err != nil {
		return fmt.Errorf("fail to read the payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (name, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, content,
	)
	if err != nil {
		return fmt.Errorf("fail to store the key '%s': %w", key, err)
	}
	return nil
}

// Delete the key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "SQLite.Delete")
	defer span.Finish()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM templates WHERE name = ?", key); err != nil {
		return fmt.Errorf("fail to delete the key '%s': %w", key, err)
	}
	return nil
}

// List the keys ending with the suffix.
func (s *SQLite) List(ctx context.Context, suffix string) ([]string, error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "SQLite.List")
	defer span.Finish()

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM templates ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("fail to query the keys: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("fail to scan the key: %w", err)
		}
		if isTemplateKey(key, suffix) {
			result = append(result, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fail to iterate the keys: %w", err)
	}
	return result, nil
}
