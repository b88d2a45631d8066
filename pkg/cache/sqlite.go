package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sql.DB connection
type DB struct {
	*sql.DB
}

// NewDB creates a new SQLite database connection
func NewDB(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.DB.Close()
}

// InitSchema initializes the database schema
func (d *DB) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		content TEXT NOT NULL,
		description TEXT,
		project_id TEXT,
		section_id TEXT,
		parent_id TEXT,
		due_date TEXT,
		due_datetime TEXT,
		deadline_date TEXT,
		labels TEXT,
		priority INTEGER DEFAULT 1,
		duration INTEGER DEFAULT 0,
		duration_unit TEXT,
		completed INTEGER DEFAULT 0,
		url TEXT,
		sync_state TEXT DEFAULT 'synced',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		object_type TEXT,
		event_type TEXT,
		object_id TEXT,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS file_metadata (
		path TEXT PRIMARY KEY,
		task_ids TEXT NOT NULL,
		task_count INTEGER DEFAULT 0,
		default_project_id TEXT,
		default_project_name TEXT
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		project_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_path ON tasks(path);
	`

	_, err := d.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}

	return nil
}
