package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

type memFeedbackStore struct {
	entries []domain.FeedbackEntry
}

func (s *memFeedbackStore) Append(_ context.Context, entry *domain.FeedbackEntry) error {
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memFeedbackStore) Summary(context.Context) (int64, float64, error) {
	return int64(len(s.entries)), 0, nil
}

func seedProvenance(t *testing.T, store *memProvenanceStore, id string, docIDs ...string) {
	t.Helper()
	err := store.Create(context.Background(), &domain.ProvenanceRecord{
		ID:          id,
		Subject:     "user:alice",
		Query:       "budget",
		DocumentIDs: docIDs,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed provenance: %v", err)
	}
}

func TestSubmitFeedbackUnknownProvenanceIsNotFound(t *testing.T) {
	uc := NewFeedbackUseCase(newMemProvenanceStore(), &memFeedbackStore{}, newMemDocStore())

	_, err := uc.Submit(context.Background(), ports.FeedbackRequest{ProvenanceID: "missing", Rating: 4})
	if !domain.IsKind(err, domain.ErrProvenanceNotFound) {
		t.Fatalf("expected ErrProvenanceNotFound, got %v", err)
	}
}

func TestSubmitFeedbackRejectsOutOfRangeRating(t *testing.T) {
	provenance := newMemProvenanceStore()
	ledger := &memFeedbackStore{}
	seedProvenance(t, provenance, "prov-1", "doc-x")
	uc := NewFeedbackUseCase(provenance, ledger, newMemDocStore())

	for _, rating := range []int{0, -1, 6} {
		if _, err := uc.Submit(context.Background(), ports.FeedbackRequest{ProvenanceID: "prov-1", Rating: rating}); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("rating %d: expected ErrInvalidInput, got %v", rating, err)
		}
	}
	if len(ledger.entries) != 0 {
		t.Fatalf("invalid rating must not leave a partial write, found %d entries", len(ledger.entries))
	}
}

func TestSubmitFeedbackFirstRatingWins(t *testing.T) {
	provenance := newMemProvenanceStore()
	ledger := &memFeedbackStore{}
	seedProvenance(t, provenance, "prov-1", "doc-x", "doc-y")
	uc := NewFeedbackUseCase(provenance, ledger, newMemDocStore())

	if _, err := uc.Submit(context.Background(), ports.FeedbackRequest{ProvenanceID: "prov-1", Rating: 5, Helpful: true}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := uc.Submit(context.Background(), ports.FeedbackRequest{ProvenanceID: "prov-1", Rating: 1}); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if len(ledger.entries) != 2 {
		t.Fatalf("both entries must be kept in the ledger, got %d", len(ledger.entries))
	}
	record, err := provenance.GetByID(context.Background(), "prov-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.FeedbackRating == nil || *record.FeedbackRating != 5 {
		t.Fatalf("expected summary rating to keep first submission 5, got %v", record.FeedbackRating)
	}
}

func TestSubmitFeedbackCreditsOnlyShownDocuments(t *testing.T) {
	provenance := newMemProvenanceStore()
	docs := newMemDocStore(
		domain.Document{ID: "doc-x", Title: "X"},
		domain.Document{ID: "doc-y", Title: "Y"},
		domain.Document{ID: "doc-z", Title: "Z"},
	)
	seedProvenance(t, provenance, "prov-1", "doc-x", "doc-y")
	uc := NewFeedbackUseCase(provenance, &memFeedbackStore{}, docs)

	_, err := uc.Submit(context.Background(), ports.FeedbackRequest{
		ProvenanceID:   "prov-1",
		Rating:         5,
		Helpful:        true,
		RelevantDocIDs: []string{"doc-y", "doc-z"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if docs.helpful["doc-y"] != 1 {
		t.Fatalf("expected doc-y credited once, got %d", docs.helpful["doc-y"])
	}
	if docs.helpful["doc-z"] != 0 {
		t.Fatalf("doc-z was never shown and must not be credited, got %d", docs.helpful["doc-z"])
	}
	if docs.helpful["doc-x"] != 0 {
		t.Fatalf("doc-x was not marked relevant, got %d", docs.helpful["doc-x"])
	}
}
