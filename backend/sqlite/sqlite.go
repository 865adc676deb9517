// Package sqlite persists the task collection in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"taskmaster/backend"
)

// Backend implements backend.Persistence using SQLite
type Backend struct {
	db *sql.DB
}

// New opens (or creates) the database at path and initializes the schema.
// Use ":memory:" for a throwaway database.
func New(path string) (*Backend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	b := &Backend{db: db}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return b, nil
}

// initSchema creates the database tables if they don't exist
func (b *Backend) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			due_date TEXT,
			priority TEXT NOT NULL DEFAULT 'medium',
			category TEXT NOT NULL DEFAULT 'personal',
			completed INTEGER NOT NULL DEFAULT 0,
			created TEXT NOT NULL,
			updated TEXT,
			reminder_handle TEXT DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_position ON tasks(position);

		CREATE TABLE IF NOT EXISTS snapshot_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			saved_at TEXT NOT NULL,
			task_count INTEGER NOT NULL
		);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Load returns the saved collection in its saved order, or nil when
// nothing has been saved yet.
func (b *Backend) Load(ctx context.Context) ([]backend.Task, error) {
	var savedAt string
	err := b.db.QueryRowContext(ctx, "SELECT saved_at FROM snapshot_meta WHERE id = 1").Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT id, title, due_date, priority, category, completed, created, updated, reminder_handle
		 FROM tasks ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := []backend.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Save replaces the stored collection with tasks in one transaction.
func (b *Backend) Save(ctx context.Context, tasks []backend.Task) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tasks (id, position, title, due_date, priority, category, completed, created, updated, reminder_handle)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, t := range tasks {
		_, err := stmt.ExecContext(ctx,
			t.ID, i, t.Title, timeToNullString(t.DueDate), string(t.Priority), string(t.Category),
			t.Completed, t.CreatedAt.Format(time.RFC3339Nano), optionalTimeToNullString(t.UpdatedAt), t.ReminderHandle,
		)
		if err != nil {
			return fmt.Errorf("failed to save task %s: %w", t.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshot_meta (id, saved_at, task_count) VALUES (1, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), len(tasks))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes the database connection
func (b *Backend) Close() error {
	return b.db.Close()
}

// timeToNullString stores the zero time as NULL.
func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func optionalTimeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return timeToNullString(*t)
}

// parseOptionalDate parses a nullable date string, yielding the zero time for NULL.
func parseOptionalDate(str sql.NullString) time.Time {
	if str.Valid && str.String != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, str.String); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// scanTask scans one row of the tasks table
func scanTask(rows *sql.Rows) (backend.Task, error) {
	var t backend.Task
	var priority, category, created string
	var dueStr, updatedStr, handle sql.NullString

	if err := rows.Scan(&t.ID, &t.Title, &dueStr, &priority, &category, &t.Completed, &created, &updatedStr, &handle); err != nil {
		return t, err
	}

	t.Priority = backend.Priority(priority)
	t.Category = backend.Category(category)
	t.DueDate = parseOptionalDate(dueStr)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if u := parseOptionalDate(updatedStr); !u.IsZero() {
		t.UpdatedAt = &u
	}
	t.ReminderHandle = handle.String
	return t, nil
}
