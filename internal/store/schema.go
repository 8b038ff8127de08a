// Package store persists schema snapshots. The realtime core never calls
// it directly; the schema-update handler below is the seam between edit
// broadcasts and durable state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a document has no stored schema yet.
var ErrNotFound = errors.New("schema not found")

// SchemaStore reads and writes the latest schema snapshot per document.
type SchemaStore struct {
	pool *pgxpool.Pool
}

func NewSchemaStore(pool *pgxpool.Pool) *SchemaStore {
	return &SchemaStore{pool: pool}
}

// GetSchema returns the stored snapshot for a document.
func (s *SchemaStore) GetSchema(ctx context.Context, documentID string) (json.RawMessage, error) {
	var content json.RawMessage
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM schemas WHERE document_id = $1`,
		documentID,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", documentID, err)
	}
	return content, nil
}

// SaveSchema upserts the snapshot for a document.
func (s *SchemaStore) SaveSchema(ctx context.Context, documentID string, content json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO schemas (document_id, content, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (document_id)
		 DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
		documentID, content,
	)
	if err != nil {
		return fmt.Errorf("save schema %s: %w", documentID, err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SchemaStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
