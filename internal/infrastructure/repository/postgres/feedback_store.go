package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/infrastructure/resilience"
)

// FeedbackStore is append-only. Rows are never updated or deleted; the
// summary view over the ledger is the only read path besides audits.
type FeedbackStore struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewFeedbackStore(db *sql.DB, executor *resilience.Executor) *FeedbackStore {
	return &FeedbackStore{db: db, executor: executor}
}

func (s *FeedbackStore) Append(ctx context.Context, entry *domain.FeedbackEntry) error {
	docsJSON, err := json.Marshal(entry.RelevantDocIDs)
	if err != nil {
		return fmt.Errorf("marshal relevant doc ids: %w", err)
	}

	op := func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO feedback (
	id, provenance_id, rating, helpful, comment, relevant_document_ids, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
			entry.ID, entry.ProvenanceID, entry.Rating, entry.Helpful,
			nullString(entry.Comment), docsJSON, entry.CreatedAt,
		)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "insert feedback", err)
		}
		return nil
	}

	if s.executor != nil {
		return s.executor.Execute(ctx, "feedback.append", op)
	}
	return op(ctx)
}

func (s *FeedbackStore) Summary(ctx context.Context) (int64, float64, error) {
	var total int64
	var avgRating sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), AVG(rating) FROM feedback
`).Scan(&total, &avgRating)
	if err != nil {
		return 0, 0, fmt.Errorf("feedback summary: %w", err)
	}
	return total, avgRating.Float64, nil
}
