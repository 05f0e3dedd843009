package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the DDL for the single-row credential table. Apply it with
// [PostgresStore.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS thoughtmap_credentials (
    id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    api_key    TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the subset of *pgxpool.Pool and *pgx.Conn used by [PostgresStore].
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps the key in a PostgreSQL table.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call Migrate before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the credential table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("credential: migrate: %w", err)
	}
	return nil
}

// Save upserts the key.
func (s *PostgresStore) Save(ctx context.Context, key string) error {
	if !Validate(key) {
		return ErrInvalid
	}
	const query = `
		INSERT INTO thoughtmap_credentials (id, api_key) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET api_key = EXCLUDED.api_key, updated_at = now()`
	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("credential: save: %w", err)
	}
	return nil
}

// Get returns the stored key.
func (s *PostgresStore) Get(ctx context.Context) (string, error) {
	var key string
	err := s.db.QueryRow(ctx, `SELECT api_key FROM thoughtmap_credentials WHERE id = 1`).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credential: get: %w", err)
	}
	return key, nil
}

// Remove deletes the stored key.
func (s *PostgresStore) Remove(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM thoughtmap_credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("credential: remove: %w", err)
	}
	return nil
}
