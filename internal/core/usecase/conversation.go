package usecase

import (
	"context"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

// ConversationUseCase exposes session history to the routing layer.
type ConversationUseCase struct {
	store ports.ConversationStore
}

func NewConversationUseCase(store ports.ConversationStore) *ConversationUseCase {
	return &ConversationUseCase{store: store}
}

func (uc *ConversationUseCase) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	return uc.store.History(ctx, sessionID, limit)
}

// AnalyticsUseCase aggregates usage and feedback reporting.
type AnalyticsUseCase struct {
	provenance ports.ProvenanceStore
	feedback   ports.FeedbackStore
	docs       ports.DocumentStore
}

func NewAnalyticsUseCase(
	provenance ports.ProvenanceStore,
	feedback ports.FeedbackStore,
	docs ports.DocumentStore,
) *AnalyticsUseCase {
	return &AnalyticsUseCase{provenance: provenance, feedback: feedback, docs: docs}
}

func (uc *AnalyticsUseCase) Summary(ctx context.Context) (*domain.AnalyticsSummary, error) {
	totalQueries, avgLatency, err := uc.provenance.Summary(ctx)
	if err != nil {
		return nil, err
	}
	totalFeedback, avgRating, err := uc.feedback.Summary(ctx)
	if err != nil {
		return nil, err
	}
	topViewed, err := uc.docs.TopViewed(ctx, 5)
	if err != nil {
		return nil, err
	}

	return &domain.AnalyticsSummary{
		TotalQueries:   totalQueries,
		TotalFeedback:  totalFeedback,
		AverageRating:  avgRating,
		AverageLatency: avgLatency,
		TopViewed:      topViewed,
	}, nil
}
