package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

// Provider is a deterministic stand-in for a hosted model, used in local
// development and tests. The same text always embeds to the same vector,
// and texts sharing tokens land near each other, which is enough for the
// retrieval pipeline to behave realistically.
type Provider struct {
	dimensions int
}

func New(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &Provider{dimensions: dimensions}
}

func (p *Provider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.vectorFor(text)
	}
	return vectors, nil
}

func (p *Provider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return p.vectorFor(text), nil
}

// vectorFor sums a pseudo-random unit contribution per token, so shared
// tokens pull two texts together regardless of word order.
func (p *Provider) vectorFor(text string) []float32 {
	vector := make([]float32, p.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		state := h.Sum64()
		for i := range vector {
			state = state*6364136223846793005 + 1442695040888963407
			vector[i] += float32(int64(state>>33))/float32(1<<31) - 0.5
		}
	}
	return vector
}

func (p *Provider) GenerateAnswer(_ context.Context, question string, docs []domain.Document, _ []domain.ConversationTurn) (*domain.Answer, error) {
	if len(docs) == 0 {
		return &domain.Answer{
			Text:       "No accessible documents matched this question.",
			Confidence: 0,
		}, nil
	}

	citations := make([]string, 0, len(docs))
	titles := make([]string, 0, len(docs))
	for _, doc := range docs {
		citations = append(citations, doc.ID)
		titles = append(titles, doc.Title)
	}
	return &domain.Answer{
		Text:       fmt.Sprintf("Based on %s: %s", strings.Join(titles, "; "), question),
		Confidence: 0.7,
		Citations:  citations,
	}, nil
}
