package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/infrastructure/resilience"
)

// EmbeddingStore keeps one vector per document, stamped with the document
// version that produced it. Re-embedding after an update overwrites in
// place, so readers never see two vectors for the same document.
type EmbeddingStore struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewEmbeddingStore(db *sql.DB, executor *resilience.Executor) *EmbeddingStore {
	return &EmbeddingStore{db: db, executor: executor}
}

func (s *EmbeddingStore) Put(ctx context.Context, docID, version string, vector []float32) error {
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}

	op := func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO document_embeddings (document_id, version, vector, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (document_id) DO UPDATE SET
	version = EXCLUDED.version,
	vector = EXCLUDED.vector,
	updated_at = EXCLUDED.updated_at
`, docID, version, vectorJSON, time.Now().UTC())
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "upsert embedding", err)
		}
		return nil
	}

	if s.executor != nil {
		return s.executor.Execute(ctx, "embeddings.put", op)
	}
	return op(ctx)
}

func (s *EmbeddingStore) All(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT document_id, vector FROM document_embeddings
`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var docID string
		var raw []byte
		if err := rows.Scan(&docID, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		var vector []float32
		if err := json.Unmarshal(raw, &vector); err != nil {
			return nil, fmt.Errorf("unmarshal vector for %s: %w", docID, err)
		}
		out[docID] = vector
	}
	return out, rows.Err()
}
