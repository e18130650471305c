package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/infrastructure/resilience"
)

// DocumentStore is the authoritative catalog. Counters only move through
// RecordViews and IncrementHelpful; both are single UPDATE statements of the
// form "count = count + 1", so concurrent increments serialize in the
// database and never lose updates.
type DocumentStore struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewDocumentStore(db *sql.DB, executor *resilience.Executor) *DocumentStore {
	return &DocumentStore{db: db, executor: executor}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/indexer startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	sensitive BOOLEAN NOT NULL DEFAULT FALSE,
	department TEXT,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	author TEXT,
	version TEXT NOT NULL,
	view_count BIGINT NOT NULL DEFAULT 0 CHECK (view_count >= 0),
	helpful_count BIGINT NOT NULL DEFAULT 0 CHECK (helpful_count >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_views (
	provenance_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	PRIMARY KEY (provenance_id, document_id)
);

CREATE TABLE IF NOT EXISTS document_embeddings (
	document_id TEXT PRIMARY KEY,
	version TEXT NOT NULL,
	vector JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS query_logs (
	id TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	query TEXT NOT NULL,
	session_id TEXT,
	document_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	latency_ms DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION,
	feedback_rating INT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
	id TEXT PRIMARY KEY,
	provenance_id TEXT NOT NULL,
	rating INT NOT NULL,
	helpful BOOLEAN NOT NULL,
	comment TEXT,
	relevant_document_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_logs_subject ON query_logs(subject, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_feedback_provenance ON feedback(provenance_id);
CREATE INDEX IF NOT EXISTS idx_documents_view_count ON documents(view_count DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *DocumentStore) Upsert(ctx context.Context, doc *domain.Document) error {
	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (
	id, title, body, sensitive, department, tags, author, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	body = EXCLUDED.body,
	sensitive = EXCLUDED.sensitive,
	department = EXCLUDED.department,
	tags = EXCLUDED.tags,
	author = EXCLUDED.author,
	version = EXCLUDED.version,
	updated_at = EXCLUDED.updated_at
`,
		doc.ID, doc.Title, doc.Body, doc.Sensitive, doc.Department, tagsJSON,
		doc.Author, doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

const documentColumns = `id, title, body, sensitive, department, tags, author, version, view_count, helpful_count, created_at, updated_at`

func (s *DocumentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (s *DocumentStore) Snapshot(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan corpus row: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// RecordViews increments each document's view counter at most once per
// provenance id. The dedup row is inserted first; the counter moves only
// when the insert actually landed, so replaying a failed write cannot
// double-count.
func (s *DocumentStore) RecordViews(ctx context.Context, provenanceID string, docIDs []string) error {
	op := func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "begin views tx", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		for _, docID := range docIDs {
			res, err := tx.ExecContext(ctx, `
INSERT INTO document_views (provenance_id, document_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, provenanceID, docID)
			if err != nil {
				return domain.WrapError(domain.ErrTemporary, "insert view marker", err)
			}
			inserted, err := res.RowsAffected()
			if err != nil {
				return domain.WrapError(domain.ErrTemporary, "view marker result", err)
			}
			if inserted == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
UPDATE documents SET view_count = view_count + 1 WHERE id = $1
`, docID); err != nil {
				return domain.WrapError(domain.ErrTemporary, "increment view count", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return domain.WrapError(domain.ErrTemporary, "commit views tx", err)
		}
		return nil
	}

	if s.executor != nil {
		return s.executor.Execute(ctx, "documents.record_views", op)
	}
	return op(ctx)
}

func (s *DocumentStore) IncrementHelpful(ctx context.Context, docIDs []string) error {
	op := func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "begin helpful tx", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		for _, docID := range docIDs {
			if _, err := tx.ExecContext(ctx, `
UPDATE documents SET helpful_count = helpful_count + 1 WHERE id = $1
`, docID); err != nil {
				return domain.WrapError(domain.ErrTemporary, "increment helpful count", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return domain.WrapError(domain.ErrTemporary, "commit helpful tx", err)
		}
		return nil
	}

	if s.executor != nil {
		return s.executor.Execute(ctx, "documents.increment_helpful", op)
	}
	return op(ctx)
}

func (s *DocumentStore) TopViewed(ctx context.Context, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
ORDER BY view_count DESC, id
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top viewed: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan top viewed row: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var department, author sql.NullString
	var tagsRaw []byte

	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Body, &doc.Sensitive, &department, &tagsRaw,
		&author, &doc.Version, &doc.ViewCount, &doc.HelpfulCount, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Department = department.String
	doc.Author = author.String
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return &doc, nil
}
