package actionq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage keeps queue snapshots in a SQLite table.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a second connection to ":memory:" would see a different database
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

// Setup creates the table if needed.
func (s *SQLiteStorage) Setup() error {
	q := `
		CREATE TABLE IF NOT EXISTS action_queues (
			key TEXT NOT NULL PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("failed to create action_queues table: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	q := `SELECT value FROM action_queues WHERE key = ?`
	err := s.db.QueryRowContext(ctx, q, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite storage: failed to load %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStorage) SetItem(ctx context.Context, key, value string) error {
	q := `INSERT OR REPLACE INTO action_queues (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("sqlite storage: failed to save %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) RemoveItem(ctx context.Context, key string) error {
	q := `DELETE FROM action_queues WHERE key = ?`
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("sqlite storage: failed to remove %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys.
func (s *SQLiteStorage) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM action_queues ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: failed to list keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite storage: failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite storage: failed to iterate over keys: %w", err)
	}
	return keys, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
