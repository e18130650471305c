package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

type memDocStore struct {
	mu      sync.Mutex
	docs    map[string]domain.Document
	views   map[string]int64
	helpful map[string]int64
	// recorded provenance ids per document, for idempotency checks
	recordedViews map[string]map[string]struct{}
}

func newMemDocStore(docs ...domain.Document) *memDocStore {
	s := &memDocStore{
		docs:          map[string]domain.Document{},
		views:         map[string]int64{},
		helpful:       map[string]int64{},
		recordedViews: map[string]map[string]struct{}{},
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *memDocStore) Upsert(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = *doc
	return nil
}

func (s *memDocStore) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New(id))
	}
	return &doc, nil
}

func (s *memDocStore) Snapshot(context.Context) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memDocStore) RecordViews(_ context.Context, provenanceID string, docIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := s.recordedViews[provenanceID]
	if seen == nil {
		seen = map[string]struct{}{}
		s.recordedViews[provenanceID] = seen
	}
	for _, id := range docIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		s.views[id]++
	}
	return nil
}

func (s *memDocStore) IncrementHelpful(_ context.Context, docIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range docIDs {
		s.helpful[id]++
	}
	return nil
}

func (s *memDocStore) TopViewed(context.Context, int) ([]domain.Document, error) { return nil, nil }

type memProvenanceStore struct {
	mu      sync.Mutex
	records map[string]*domain.ProvenanceRecord
	failing bool
}

func newMemProvenanceStore() *memProvenanceStore {
	return &memProvenanceStore{records: map[string]*domain.ProvenanceRecord{}}
}

func (s *memProvenanceStore) Create(_ context.Context, record *domain.ProvenanceRecord) error {
	if s.failing {
		return domain.WrapError(domain.ErrTemporary, "create", errors.New("storage down"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *memProvenanceStore) GetByID(_ context.Context, id string) (*domain.ProvenanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrProvenanceNotFound, "get", errors.New(id))
	}
	clone := *record
	return &clone, nil
}

func (s *memProvenanceStore) SetRatingIfUnset(_ context.Context, id string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return domain.WrapError(domain.ErrProvenanceNotFound, "set rating", errors.New(id))
	}
	if record.FeedbackRating == nil {
		record.FeedbackRating = &rating
	}
	return nil
}

func (s *memProvenanceStore) ListBySubject(context.Context, string, int) ([]domain.ProvenanceRecord, error) {
	return nil, nil
}

func (s *memProvenanceStore) Summary(context.Context) (int64, float64, error) { return 0, 0, nil }

type memConversationStore struct {
	mu    sync.Mutex
	turns map[string][]domain.ConversationTurn
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{turns: map[string][]domain.ConversationTurn{}}
}

func (s *memConversationStore) AppendTurn(_ context.Context, turn domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return nil
}

func (s *memConversationStore) History(_ context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[sessionID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]domain.ConversationTurn(nil), turns...), nil
}

type embedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f embedderFunc) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

func (f embedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := f(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type searcherFunc func(ctx context.Context, vector []float32, limit int) ([]domain.ScoredCandidate, error)

func (f searcherFunc) Search(ctx context.Context, vector []float32, limit int) ([]domain.ScoredCandidate, error) {
	return f(ctx, vector, limit)
}

func okEmbedder() embedderFunc {
	return func(context.Context, string) ([]float32, error) { return []float32{1, 0, 0}, nil }
}

func staticSearcher(candidates ...domain.ScoredCandidate) searcherFunc {
	return func(context.Context, []float32, int) ([]domain.ScoredCandidate, error) {
		return candidates, nil
	}
}

func allowAllOracle() oracleFunc {
	return func(context.Context, string, string, string) (bool, error) { return true, nil }
}

// Scenario corpus from the retrieval contract: doc-a matches lexically only,
// doc-b has a vector but no term overlap, doc-c matches both signals.
func scenarioFixtures() (*memDocStore, embedderFunc, searcherFunc) {
	store := newMemDocStore(
		domain.Document{ID: "doc-a", Title: "Budget Q4", Body: "Quarter four budget planning and allocations."},
		domain.Document{ID: "doc-b", Title: "Team offsite", Body: "Travel notes and the agenda."},
		domain.Document{ID: "doc-c", Title: "Quarterly budget report", Body: "Budget report for the quarter."},
	)
	searcher := staticSearcher(
		domain.ScoredCandidate{DocumentID: "doc-c", Score: 0.92, Source: domain.SourceSemantic},
		domain.ScoredCandidate{DocumentID: "doc-b", Score: 0.71, Source: domain.SourceSemantic},
	)
	return store, okEmbedder(), searcher
}

func newScenarioUseCase(store *memDocStore, embedder ports.Embedder, searcher ports.VectorSearcher, oracle ports.AuthorizationOracle, provenance ports.ProvenanceStore) *RetrieveUseCase {
	return NewRetrieveUseCase(
		store, embedder, searcher, oracle, nil,
		newMemConversationStore(), provenance,
		RetrieveConfig{Alpha: 0.5, DefaultK: 5, OracleTimeout: time.Second, OracleConcurrency: 4},
	)
}

func TestRetrieveRanksDualSignalDocumentFirst(t *testing.T) {
	store, embedder, searcher := scenarioFixtures()
	provenance := newMemProvenanceStore()
	uc := newScenarioUseCase(store, embedder, searcher, allowAllOracle(), provenance)

	result, err := uc.Retrieve(context.Background(), ports.RetrieveRequest{
		Subject: "alice",
		Query:   "quarterly budget report",
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Documents) != 3 {
		t.Fatalf("expected 3 results, got %d", len(result.Documents))
	}
	if result.Documents[0].ID != "doc-c" {
		t.Fatalf("expected doc-c ranked first with both signals, got %s", result.Documents[0].ID)
	}
}

func TestRetrieveFiltersUnauthorizedWithoutReordering(t *testing.T) {
	store, embedder, searcher := scenarioFixtures()
	provenance := newMemProvenanceStore()
	oracle := oracleFunc(func(_ context.Context, _, _, object string) (bool, error) {
		return object != "document:doc-c", nil
	})
	uc := newScenarioUseCase(store, embedder, searcher, oracle, provenance)

	result, err := uc.Retrieve(context.Background(), ports.RetrieveRequest{
		Subject: "intern",
		Query:   "quarterly budget report",
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	got := make([]string, 0, len(result.Documents))
	for _, doc := range result.Documents {
		if doc.ID == "doc-c" {
			t.Fatalf("unauthorized doc-c leaked into results")
		}
		got = append(got, doc.ID)
	}
	if len(got) != 2 || got[0] != "doc-a" || got[1] != "doc-b" {
		t.Fatalf("expected [doc-a doc-b] per tie-break with doc-c absent, got %v", got)
	}

	record, err := provenance.GetByID(context.Background(), result.ProvenanceID)
	if err != nil {
		t.Fatalf("provenance record missing: %v", err)
	}
	for _, id := range record.DocumentIDs {
		if id == "doc-c" {
			t.Fatalf("unauthorized doc-c leaked into the provenance record")
		}
	}
	if store.views["doc-c"] != 0 {
		t.Fatalf("unauthorized doc-c view counter incremented")
	}
}

func TestRetrieveDegradesToLexicalWhenEmbedderFails(t *testing.T) {
	store, _, searcher := scenarioFixtures()
	embedder := embedderFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	})
	uc := newScenarioUseCase(store, embedder, searcher, allowAllOracle(), newMemProvenanceStore())

	result, err := uc.Retrieve(context.Background(), ports.RetrieveRequest{
		Subject: "alice",
		Query:   "quarterly budget report",
	})
	if err != nil {
		t.Fatalf("expected graceful degradation, got error %v", err)
	}
	// doc-b only matches semantically, so lexical-only ranking excludes it.
	for _, doc := range result.Documents {
		if doc.ID == "doc-b" {
			t.Fatalf("semantic-only candidate present despite embedder outage")
		}
	}
	if len(result.Documents) == 0 {
		t.Fatalf("expected lexical results despite embedder outage")
	}
}

func TestRetrieveEmptyCorpusYieldsEmptyResult(t *testing.T) {
	uc := newScenarioUseCase(newMemDocStore(), okEmbedder(), staticSearcher(), allowAllOracle(), newMemProvenanceStore())

	result, err := uc.Retrieve(context.Background(), ports.RetrieveRequest{Subject: "alice", Query: "anything"})
	if err != nil {
		t.Fatalf("empty corpus must not be an error, got %v", err)
	}
	if len(result.Documents) != 0 {
		t.Fatalf("expected empty result set, got %d", len(result.Documents))
	}
}

func TestRetrieveStillReturnsResultsWhenRecordingFails(t *testing.T) {
	store, embedder, searcher := scenarioFixtures()
	provenance := newMemProvenanceStore()
	provenance.failing = true
	uc := newScenarioUseCase(store, embedder, searcher, allowAllOracle(), provenance)

	result, err := uc.Retrieve(context.Background(), ports.RetrieveRequest{
		Subject: "alice",
		Query:   "quarterly budget report",
	})
	if err != nil {
		t.Fatalf("retrieval must not fail on bookkeeping failure, got %v", err)
	}
	if len(result.Documents) == 0 {
		t.Fatalf("expected results despite recording failure")
	}
}

func TestRetrieveSkipsRecordingForDisconnectedCaller(t *testing.T) {
	store, embedder, searcher := scenarioFixtures()
	provenance := newMemProvenanceStore()
	uc := newScenarioUseCase(store, embedder, searcher, allowAllOracle(), provenance)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := uc.Retrieve(ctx, ports.RetrieveRequest{Subject: "alice", Query: "quarterly budget report"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(provenance.records) != 0 {
		t.Fatalf("expected no provenance record for a cancelled caller")
	}
	for id, count := range store.views {
		if count != 0 {
			t.Fatalf("expected no view increments for a cancelled caller, %s has %d", id, count)
		}
	}
}

func TestRetrieveViewCountsMonotonicAndIdempotentPerProvenance(t *testing.T) {
	store, embedder, searcher := scenarioFixtures()
	provenance := newMemProvenanceStore()
	uc := newScenarioUseCase(store, embedder, searcher, allowAllOracle(), provenance)

	var lastViews map[string]int64
	for i := 0; i < 3; i++ {
		result, err := uc.Retrieve(context.Background(), ports.RetrieveRequest{
			Subject: "alice",
			Query:   "quarterly budget report",
		})
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}

		// Replaying the recorder with the same provenance id must not
		// double-count.
		record, err := provenance.GetByID(context.Background(), result.ProvenanceID)
		if err != nil {
			t.Fatalf("provenance record missing: %v", err)
		}
		if err := store.RecordViews(context.Background(), record.ID, record.DocumentIDs); err != nil {
			t.Fatalf("replay RecordViews() error = %v", err)
		}

		store.mu.Lock()
		for id, count := range store.views {
			if count < lastViews[id] {
				t.Fatalf("view count for %s decreased from %d to %d", id, lastViews[id], count)
			}
		}
		if store.views["doc-c"] != int64(i+1) {
			t.Fatalf("expected doc-c views == %d after %d queries with replays, got %d", i+1, i+1, store.views["doc-c"])
		}
		lastViews = map[string]int64{}
		for id, count := range store.views {
			lastViews[id] = count
		}
		store.mu.Unlock()
	}
}

func TestRetrieveRejectsEmptyQueryAndMissingSubject(t *testing.T) {
	store, embedder, searcher := scenarioFixtures()
	uc := newScenarioUseCase(store, embedder, searcher, allowAllOracle(), newMemProvenanceStore())

	if _, err := uc.Retrieve(context.Background(), ports.RetrieveRequest{Subject: "alice"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty query, got %v", err)
	}
	if _, err := uc.Retrieve(context.Background(), ports.RetrieveRequest{Query: "budget"}); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing subject, got %v", err)
	}
}

func TestSnippetTruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("файл", 30)
	got := snippet(body, 41)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8 snippet, got %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis suffix on truncated snippet, got %q", got)
	}
	cut := strings.TrimSuffix(got, "…")
	if !strings.HasPrefix(body, cut) {
		t.Fatalf("expected snippet text to be a body prefix, got %q", cut)
	}
	if len(cut) > 41 {
		t.Fatalf("expected at most 41 bytes before the ellipsis, got %d", len(cut))
	}

	short := "краткое описание"
	if got := snippet(short, 200); got != short {
		t.Fatalf("expected short body returned unchanged, got %q", got)
	}
}
