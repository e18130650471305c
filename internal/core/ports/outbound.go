package ports

import (
	"context"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

// DocumentStore is the authoritative document catalog. Counter mutations go
// through RecordViews and IncrementHelpful only; both are atomic per document
// and never decrease a counter.
type DocumentStore interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// Snapshot returns the full corpus for lexical scoring.
	Snapshot(ctx context.Context) ([]domain.Document, error)
	// RecordViews increments the view counter of each document once for the
	// given provenance id. Replaying the same provenance id is a no-op.
	RecordViews(ctx context.Context, provenanceID string, docIDs []string) error
	IncrementHelpful(ctx context.Context, docIDs []string) error
	TopViewed(ctx context.Context, limit int) ([]domain.Document, error)
}

// AuthorizationOracle answers "may subject do relation on object". Callers
// must treat any error as a denial.
type AuthorizationOracle interface {
	Check(ctx context.Context, subject, relation, object string) (bool, error)
}

// RelationshipAdmin manages authorization tuples on oracles that own their
// policy data locally.
type RelationshipAdmin interface {
	AddRelationship(ctx context.Context, subject, relation, object string) error
	RemoveRelationship(ctx context.Context, subject, relation, object string) error
	ListRelationships(ctx context.Context) ([][3]string, error)
}

// Embedder builds vectors for document text and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator creates the final user-facing answer from filtered
// documents. It must only ever receive documents that passed the filter.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, docs []domain.Document, history []domain.ConversationTurn) (*domain.Answer, error)
}

// VectorSearcher ranks documents by vector proximity to the query vector.
// Documents without a stored vector are simply absent from the results.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.ScoredCandidate, error)
}

// EmbeddingStore persists per-document vectors, versioned by document
// version so stale vectors can be detected after an update.
type EmbeddingStore interface {
	Put(ctx context.Context, docID, version string, vector []float32) error
	All(ctx context.Context) (map[string][]float32, error)
}

// ProvenanceStore persists query logs. SetRatingIfUnset is first-write-wins:
// it must atomically test and set so two concurrent feedback submissions
// cannot both win.
type ProvenanceStore interface {
	Create(ctx context.Context, record *domain.ProvenanceRecord) error
	GetByID(ctx context.Context, id string) (*domain.ProvenanceRecord, error)
	SetRatingIfUnset(ctx context.Context, id string, rating int) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]domain.ProvenanceRecord, error)
	Summary(ctx context.Context) (totalQueries int64, avgLatency float64, err error)
}

// FeedbackStore is the append-only feedback ledger.
type FeedbackStore interface {
	Append(ctx context.Context, entry *domain.FeedbackEntry) error
	Summary(ctx context.Context) (total int64, avgRating float64, err error)
}

// ConversationStore persists session history, append-only.
type ConversationStore interface {
	AppendTurn(ctx context.Context, turn domain.ConversationTurn) error
	History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
}

// IndexQueue carries document ids between the API and the indexer worker.
type IndexQueue interface {
	PublishReindex(ctx context.Context, documentID string) error
	SubscribeReindex(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexed(ctx context.Context, documentID string) error
	SubscribeIndexed(ctx context.Context, handler func(context.Context, string) error) error
}
