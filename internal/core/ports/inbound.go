package ports

import (
	"context"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

// RetrieveRequest is the single logical retrieval operation exposed to the
// routing layer.
type RetrieveRequest struct {
	Subject   string
	Query     string
	K         int
	SessionID string
}

// RetrievalService runs the full scored-fused-filtered-recorded pipeline.
type RetrievalService interface {
	Retrieve(ctx context.Context, req RetrieveRequest) (*domain.RetrievalResult, error)
}

// FeedbackRequest attaches a relevance judgment to a provenance record.
type FeedbackRequest struct {
	ProvenanceID   string
	Rating         int
	Helpful        bool
	Comment        string
	RelevantDocIDs []string
}

// FeedbackService appends feedback and applies its ranking side effects.
type FeedbackService interface {
	Submit(ctx context.Context, req FeedbackRequest) (*domain.FeedbackEntry, error)
}

// ConversationReader exposes session history.
type ConversationReader interface {
	History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
}

// DocumentAdmin is the inbound contract for catalog maintenance.
type DocumentAdmin interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// AnalyticsService aggregates usage and feedback reporting.
type AnalyticsService interface {
	Summary(ctx context.Context) (*domain.AnalyticsSummary, error)
}

// DocumentIndexer is the inbound contract for asynchronous re-embedding.
type DocumentIndexer interface {
	IndexByID(ctx context.Context, documentID string) error
}
