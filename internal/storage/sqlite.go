package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valter-silva-au/rmb/pkg/models"
)

const sqliteOpTimeout = 10 * time.Second

const annotationsSchema = `
CREATE TABLE IF NOT EXISTS annotations (
	key        TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

type sqliteAnnotationRepository struct {
	db   *sql.DB
	path string
	key  string
}

// NewSQLiteAnnotationRepository opens (creating if needed) the database at
// path and stores the annotation document as JSON in the row named key.
func NewSQLiteAnnotationRepository(ctx context.Context, path, key string) (AnnotationRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection keeps pragmas and writes on one handle.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, annotationsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating annotations table: %w", err)
	}

	return &sqliteAnnotationRepository{db: db, path: path, key: key}, nil
}

func (r *sqliteAnnotationRepository) Location() string {
	return r.path
}

func (r *sqliteAnnotationRepository) LoadAnnotations() (*models.PersistedAnnotations, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()

	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM annotations WHERE key = ?`, r.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading annotations: %w", err)
	}

	var pa models.PersistedAnnotations
	if err := json.Unmarshal([]byte(raw), &pa); err != nil {
		return nil, fmt.Errorf("loading annotations: decoding row: %w", err)
	}
	normalize(&pa)
	return &pa, nil
}

func (r *sqliteAnnotationRepository) SaveAnnotations(data models.PersistedAnnotations) error {
	normalize(&data)
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("saving annotations: encoding row: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO annotations (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		r.key, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving annotations: %w", err)
	}
	return nil
}

func (r *sqliteAnnotationRepository) Close() error {
	return r.db.Close()
}
