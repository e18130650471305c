package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

// RetrieveConfig tunes the retrieval pipeline.
type RetrieveConfig struct {
	// Alpha weighs the semantic score against the lexical score in fusion.
	Alpha float64
	// DefaultK is the result count when the caller does not specify one.
	DefaultK int
	// SemanticTopK bounds the semantic scorer's candidate list.
	SemanticTopK int
	// OracleTimeout applies per authorization check.
	OracleTimeout time.Duration
	// OracleConcurrency caps concurrent authorization checks per request.
	OracleConcurrency int
	// AnswerEnabled turns on post-filter answer generation.
	AnswerEnabled bool
	// HistoryLimit bounds the conversation context passed to the generator.
	HistoryLimit int
	// SnippetLength bounds the body excerpt in result summaries.
	SnippetLength int
}

func (c RetrieveConfig) normalize() RetrieveConfig {
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = 0.5
	}
	if c.DefaultK <= 0 {
		c.DefaultK = 5
	}
	if c.SemanticTopK <= 0 {
		c.SemanticTopK = 20
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.SnippetLength <= 0 {
		c.SnippetLength = 200
	}
	return c
}

// RetrieveUseCase composes the pipeline stages in fixed order: score
// (lexical and semantic in parallel), fuse, filter, answer, record. The
// stages are private and only reachable through Retrieve, so no caller can
// record a query or generate an answer from an unfiltered candidate list.
type RetrieveUseCase struct {
	docs          ports.DocumentStore
	embedder      ports.Embedder
	vectors       ports.VectorSearcher
	filter        *privacyFilter
	generator     ports.AnswerGenerator
	conversations ports.ConversationStore
	provenance    ports.ProvenanceStore
	cfg           RetrieveConfig
}

func NewRetrieveUseCase(
	docs ports.DocumentStore,
	embedder ports.Embedder,
	vectors ports.VectorSearcher,
	oracle ports.AuthorizationOracle,
	generator ports.AnswerGenerator,
	conversations ports.ConversationStore,
	provenance ports.ProvenanceStore,
	cfg RetrieveConfig,
) *RetrieveUseCase {
	cfg = cfg.normalize()
	return &RetrieveUseCase{
		docs:          docs,
		embedder:      embedder,
		vectors:       vectors,
		filter:        newPrivacyFilter(oracle, cfg.OracleTimeout, cfg.OracleConcurrency),
		generator:     generator,
		conversations: conversations,
		provenance:    provenance,
		cfg:           cfg,
	}
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, req ports.RetrieveRequest) (*domain.RetrievalResult, error) {
	started := time.Now()

	if req.Query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query must not be empty"))
	}
	if req.Subject == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "retrieve", errors.New("requesting subject is required"))
	}
	k := req.K
	if k <= 0 {
		k = uc.cfg.DefaultK
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	uc.appendTurn(ctx, domain.ConversationTurn{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   req.Query,
		CreatedAt: time.Now().UTC(),
	})

	corpus, err := uc.docs.Snapshot(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "corpus snapshot", err)
	}

	lexical, semantic := uc.scoreBoth(ctx, corpus, req.Query)
	fused := fuseCandidates(lexical, semantic, uc.cfg.Alpha, k)
	visible := uc.filter.visible(ctx, req.Subject, fused)

	byID := make(map[string]domain.Document, len(corpus))
	for _, doc := range corpus {
		byID[doc.ID] = doc
	}

	shown := make([]domain.Document, 0, len(visible))
	summaries := make([]domain.DocumentSummary, 0, len(visible))
	for _, candidate := range visible {
		doc, ok := byID[candidate.DocumentID]
		if !ok {
			continue
		}
		shown = append(shown, doc)
		summaries = append(summaries, domain.DocumentSummary{
			ID:        doc.ID,
			Title:     doc.Title,
			Snippet:   snippet(doc.Body, uc.cfg.SnippetLength),
			Sensitive: doc.Sensitive,
			Score:     candidate.Score,
		})
	}

	answer := uc.generateAnswer(ctx, req.Query, sessionID, shown)

	provenanceID := uuid.NewString()
	uc.record(ctx, &domain.ProvenanceRecord{
		ID:            provenanceID,
		Subject:       req.Subject,
		Query:         req.Query,
		SessionID:     sessionID,
		DocumentIDs:   documentIDs(shown),
		LatencyMillis: float64(time.Since(started).Microseconds()) / 1000.0,
		Confidence:    confidenceOf(answer),
		CreatedAt:     time.Now().UTC(),
	})

	return &domain.RetrievalResult{
		Documents:    summaries,
		ProvenanceID: provenanceID,
		SessionID:    sessionID,
		Answer:       answer,
	}, nil
}

// scoreBoth runs the lexical and semantic scorers in parallel and joins on
// both. Semantic failures degrade to lexical-only ranking instead of failing
// the request.
func (uc *RetrieveUseCase) scoreBoth(ctx context.Context, corpus []domain.Document, query string) ([]domain.ScoredCandidate, []domain.ScoredCandidate) {
	semanticCh := make(chan []domain.ScoredCandidate, 1)
	go func() {
		semanticCh <- uc.scoreSemantic(ctx, query)
	}()

	lexical := scoreLexical(corpus, query)
	return lexical, <-semanticCh
}

func (uc *RetrieveUseCase) scoreSemantic(ctx context.Context, query string) []domain.ScoredCandidate {
	if uc.embedder == nil || uc.vectors == nil {
		return nil
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Warn("semantic_scorer_degraded", "stage", "embed", "error", err)
		return nil
	}
	candidates, err := uc.vectors.Search(ctx, queryVector, uc.cfg.SemanticTopK)
	if err != nil {
		slog.Warn("semantic_scorer_degraded", "stage", "search", "error", err)
		return nil
	}
	return candidates
}

func (uc *RetrieveUseCase) generateAnswer(ctx context.Context, query, sessionID string, shown []domain.Document) *domain.Answer {
	if !uc.cfg.AnswerEnabled || uc.generator == nil || len(shown) == 0 {
		return nil
	}

	var history []domain.ConversationTurn
	if uc.conversations != nil {
		turns, err := uc.conversations.History(ctx, sessionID, uc.cfg.HistoryLimit)
		if err != nil {
			slog.Warn("conversation_history_unavailable", "session_id", sessionID, "error", err)
		} else {
			history = turns
		}
	}

	answer, err := uc.generator.GenerateAnswer(ctx, query, shown, history)
	if err != nil {
		slog.Warn("answer_generation_failed", "error", err)
		return nil
	}

	uc.appendTurn(ctx, domain.ConversationTurn{
		SessionID:   sessionID,
		Role:        domain.RoleAssistant,
		Content:     answer.Text,
		DocumentIDs: answer.Citations,
		CreatedAt:   time.Now().UTC(),
	})
	return answer
}

// record runs after filtering, so counters and the provenance log never
// reflect unauthorized exposure. A disconnected caller skips recording
// entirely; bookkeeping failures are logged and swallowed so retrieval
// itself never fails because of them.
func (uc *RetrieveUseCase) record(ctx context.Context, record *domain.ProvenanceRecord) {
	if ctx.Err() != nil {
		slog.Info("recording_skipped", "provenance_id", record.ID, "reason", ctx.Err())
		return
	}

	if err := uc.provenance.Create(ctx, record); err != nil {
		slog.Error("provenance_write_failed", "provenance_id", record.ID, "error", err)
		return
	}
	if len(record.DocumentIDs) == 0 {
		return
	}
	if err := uc.docs.RecordViews(ctx, record.ID, record.DocumentIDs); err != nil {
		slog.Error("view_count_update_failed", "provenance_id", record.ID, "error", err)
	}
}

func (uc *RetrieveUseCase) appendTurn(ctx context.Context, turn domain.ConversationTurn) {
	if uc.conversations == nil {
		return
	}
	if err := uc.conversations.AppendTurn(ctx, turn); err != nil {
		slog.Warn("conversation_append_failed", "session_id", turn.SessionID, "error", err)
	}
}

func documentIDs(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.ID)
	}
	return out
}

func confidenceOf(answer *domain.Answer) *float64 {
	if answer == nil {
		return nil
	}
	confidence := answer.Confidence
	return &confidence
}

func snippet(body string, limit int) string {
	if len(body) <= limit {
		return body
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	for limit > 0 && !utf8.RuneStart(body[limit]) {
		limit--
	}
	cut := body[:limit]
	if idx := lastSpace(cut); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func lastSpace(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' {
			return i
		}
	}
	return -1
}
