package snapshot

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

// Searcher serves vector queries from an in-memory copy of the embedding
// store. Reload swaps the whole index atomically, so searches never observe
// a half-built index and take no locks.
type Searcher struct {
	store ports.EmbeddingStore
	index atomic.Pointer[index]
}

type index struct {
	ids     []string
	vectors [][]float32
}

func NewSearcher(store ports.EmbeddingStore) *Searcher {
	s := &Searcher{store: store}
	s.index.Store(&index{})
	return s
}

// Reload rebuilds the index from the embedding store. Vectors are
// normalized once here so search is a plain dot product.
func (s *Searcher) Reload(ctx context.Context) error {
	all, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}

	next := &index{
		ids:     make([]string, 0, len(all)),
		vectors: make([][]float32, 0, len(all)),
	}
	for id := range all {
		next.ids = append(next.ids, id)
	}
	sort.Strings(next.ids)
	for _, id := range next.ids {
		next.vectors = append(next.vectors, normalize(all[id]))
	}

	s.index.Store(next)
	return nil
}

func (s *Searcher) Size() int {
	return len(s.index.Load().ids)
}

func (s *Searcher) Search(_ context.Context, queryVector []float32, limit int) ([]domain.ScoredCandidate, error) {
	idx := s.index.Load()
	if len(idx.ids) == 0 || len(queryVector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := normalize(queryVector)
	candidates := make([]domain.ScoredCandidate, 0, len(idx.ids))
	for i, id := range idx.ids {
		if len(idx.vectors[i]) != len(query) {
			continue
		}
		candidates = append(candidates, domain.ScoredCandidate{
			DocumentID: id,
			Score:      dot(query, idx.vectors[i]),
			Source:     domain.SourceSemantic,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DocumentID < candidates[j].DocumentID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func normalize(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vector
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
