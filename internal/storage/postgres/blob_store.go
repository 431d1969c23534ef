// Package postgres implements the object store on a PostgreSQL bytea table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"Postdeck/internal/storage"
)

type blobStore struct {
	db *sql.DB
}

// NewBlobStore creates a PostgreSQL-backed object store over the
// asset_blobs table (see internal/db/migrations).
func NewBlobStore(db *sql.DB) storage.ObjectStore {
	return &blobStore{db: db}
}

// Get returns the bytes stored under key.
func (s *blobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidKey
	}

	var data []byte
	query := `SELECT data FROM asset_blobs WHERE key = $1`
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, storage.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Put stores data under key, replacing any existing row.
func (s *blobStore) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return storage.ErrInvalidKey
	}

	query := `
		INSERT INTO asset_blobs (key, data)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Delete removes the row under key. Missing keys are not an error.
func (s *blobStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrInvalidKey
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM asset_blobs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
