package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/infrastructure/resilience"
)

type ProvenanceStore struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewProvenanceStore(db *sql.DB, executor *resilience.Executor) *ProvenanceStore {
	return &ProvenanceStore{db: db, executor: executor}
}

func (s *ProvenanceStore) Create(ctx context.Context, record *domain.ProvenanceRecord) error {
	docsJSON, err := json.Marshal(record.DocumentIDs)
	if err != nil {
		return fmt.Errorf("marshal document ids: %w", err)
	}

	op := func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO query_logs (
	id, subject, query, session_id, document_ids, latency_ms, confidence, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
			record.ID, record.Subject, record.Query, nullString(record.SessionID),
			docsJSON, record.LatencyMillis, record.Confidence, record.CreatedAt,
		)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "insert query log", err)
		}
		return nil
	}

	if s.executor != nil {
		return s.executor.Execute(ctx, "provenance.create", op)
	}
	return op(ctx)
}

const provenanceColumns = `id, subject, query, session_id, document_ids, latency_ms, confidence, feedback_rating, created_at`

func (s *ProvenanceStore) GetByID(ctx context.Context, id string) (*domain.ProvenanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+provenanceColumns+`
FROM query_logs
WHERE id = $1
`, id)

	record, err := scanProvenance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProvenanceNotFound, "get query log", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan query log: %w", err)
	}
	return record, nil
}

// SetRatingIfUnset is first-write-wins. The WHERE clause is the atomic
// test-and-set; zero rows affected means an earlier rating already landed,
// which is not an error.
func (s *ProvenanceStore) SetRatingIfUnset(ctx context.Context, id string, rating int) error {
	op := func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
UPDATE query_logs SET feedback_rating = $2 WHERE id = $1 AND feedback_rating IS NULL
`, id, rating)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "set feedback rating", err)
		}
		return nil
	}

	if s.executor != nil {
		return s.executor.Execute(ctx, "provenance.set_rating", op)
	}
	return op(ctx)
}

func (s *ProvenanceStore) ListBySubject(ctx context.Context, subject string, limit int) ([]domain.ProvenanceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+provenanceColumns+`
FROM query_logs
WHERE subject = $1
ORDER BY created_at DESC
LIMIT $2
`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("query logs by subject: %w", err)
	}
	defer rows.Close()

	var out []domain.ProvenanceRecord
	for rows.Next() {
		record, err := scanProvenance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query log row: %w", err)
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

func (s *ProvenanceStore) Summary(ctx context.Context) (int64, float64, error) {
	var total int64
	var avgLatency sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), AVG(latency_ms) FROM query_logs
`).Scan(&total, &avgLatency)
	if err != nil {
		return 0, 0, fmt.Errorf("query log summary: %w", err)
	}
	return total, avgLatency.Float64, nil
}

func scanProvenance(row rowScanner) (*domain.ProvenanceRecord, error) {
	var record domain.ProvenanceRecord
	var sessionID sql.NullString
	var confidence sql.NullFloat64
	var rating sql.NullInt64
	var docsRaw []byte

	err := row.Scan(
		&record.ID, &record.Subject, &record.Query, &sessionID, &docsRaw,
		&record.LatencyMillis, &confidence, &rating, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.SessionID = sessionID.String
	if confidence.Valid {
		record.Confidence = &confidence.Float64
	}
	if rating.Valid {
		value := int(rating.Int64)
		record.FeedbackRating = &value
	}
	if len(docsRaw) > 0 {
		if err := json.Unmarshal(docsRaw, &record.DocumentIDs); err != nil {
			return nil, fmt.Errorf("unmarshal document ids: %w", err)
		}
	}
	if record.DocumentIDs == nil {
		record.DocumentIDs = []string{}
	}
	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
