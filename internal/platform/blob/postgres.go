package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps payloads in the image_blobs table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	query := `INSERT INTO image_blobs (key, content_type, data) VALUES ($1, $2, $3)
	          ON CONFLICT (key) DO UPDATE SET content_type = EXCLUDED.content_type, data = EXCLUDED.data`
	if _, err := s.db.ExecContext(ctx, query, key, contentType, data); err != nil {
		return fmt.Errorf("PostgresStore.Put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Object, error) {
	query := `SELECT content_type, data FROM image_blobs WHERE key = $1`
	obj := &Object{}
	err := s.db.QueryRowContext(ctx, query, key).Scan(&obj.ContentType, &obj.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("PostgresStore.Get: %w", err)
	}
	return obj, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM image_blobs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("PostgresStore.Delete: %w", err)
	}
	return nil
}
