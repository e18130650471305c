package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

// FeedbackUseCase appends relevance judgments to the ledger and applies
// their ranking side effects. Every entry is kept; only the first one for a
// record sets the record's summary rating.
type FeedbackUseCase struct {
	provenance ports.ProvenanceStore
	ledger     ports.FeedbackStore
	docs       ports.DocumentStore
}

func NewFeedbackUseCase(
	provenance ports.ProvenanceStore,
	ledger ports.FeedbackStore,
	docs ports.DocumentStore,
) *FeedbackUseCase {
	return &FeedbackUseCase{
		provenance: provenance,
		ledger:     ledger,
		docs:       docs,
	}
}

func (uc *FeedbackUseCase) Submit(ctx context.Context, req ports.FeedbackRequest) (*domain.FeedbackEntry, error) {
	if req.ProvenanceID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback", errors.New("provenance id is required"))
	}
	if req.Rating < domain.RatingMin || req.Rating > domain.RatingMax {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback",
			fmt.Errorf("rating %d outside [%d, %d]", req.Rating, domain.RatingMin, domain.RatingMax))
	}

	record, err := uc.provenance.GetByID(ctx, req.ProvenanceID)
	if err != nil {
		return nil, err
	}

	entry := &domain.FeedbackEntry{
		ID:             uuid.NewString(),
		ProvenanceID:   record.ID,
		Rating:         req.Rating,
		Helpful:        req.Helpful,
		Comment:        req.Comment,
		RelevantDocIDs: req.RelevantDocIDs,
		CreatedAt:      time.Now().UTC(),
	}
	if err := uc.ledger.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append feedback: %w", err)
	}

	// First-write-wins: the store only updates an unset rating, so a second
	// submission is appended to the ledger but leaves the summary untouched.
	if err := uc.provenance.SetRatingIfUnset(ctx, record.ID, req.Rating); err != nil {
		slog.Warn("feedback_rating_update_failed", "provenance_id", record.ID, "error", err)
	}

	// Feedback can only credit documents the record actually returned;
	// anything else is silently ignored.
	credited := intersect(req.RelevantDocIDs, record.DocumentIDs)
	if len(credited) > 0 {
		if err := uc.docs.IncrementHelpful(ctx, credited); err != nil {
			slog.Warn("helpful_count_update_failed", "provenance_id", record.ID, "error", err)
		}
	}

	return entry, nil
}

func intersect(requested, shown []string) []string {
	if len(requested) == 0 || len(shown) == 0 {
		return nil
	}
	shownSet := make(map[string]struct{}, len(shown))
	for _, id := range shown {
		shownSet[id] = struct{}{}
	}
	out := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := shownSet[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
