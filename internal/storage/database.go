package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path, creating the
// parent directory if needed. It enables foreign keys and WAL mode and sets
// connection pool settings.
func New(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			paper_url TEXT,
			repo_url TEXT,
			focus_points TEXT NOT NULL DEFAULT '[]',
			paragraphs INTEGER NOT NULL DEFAULT 0,
			code_chunks INTEGER NOT NULL DEFAULT 0,
			alignment_links INTEGER NOT NULL DEFAULT 0,
			last_built_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS qa_entries (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			route TEXT NOT NULL,
			provenance TEXT NOT NULL,
			code_refs TEXT NOT NULL DEFAULT '[]',
			paper_count INTEGER NOT NULL DEFAULT 0,
			code_count INTEGER NOT NULL DEFAULT 0,
			insufficient_evidence INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_qa_entries_project_created
			ON qa_entries (project_id, created_at DESC);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

const timeLayout = time.RFC3339Nano

// parseTime accepts the layout this package writes and SQLite's default DATETIME format.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
