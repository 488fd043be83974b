package actionq

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Storage = (*PostgresStorage)(nil)

// PostgresStorage keeps queue snapshots in a Postgres table.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

// Setup creates the table if needed.
func (s *PostgresStorage) Setup(ctx context.Context) error {
	q := `
		CREATE TABLE IF NOT EXISTS action_queues (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("failed to create action_queues table: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM action_queues WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres storage: failed to load %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStorage) SetItem(ctx context.Context, key, value string) error {
	q := `
		INSERT INTO action_queues (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("postgres storage: failed to save %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM action_queues WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres storage: failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) Close() {
	s.pool.Close()
}
