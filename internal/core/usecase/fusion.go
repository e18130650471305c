package usecase

import (
	"sort"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

// fuseCandidates merges the lexical and semantic rankings into one
// deduplicated list. Each source list is min-max normalized independently,
// then combined as alpha*semantic + (1-alpha)*lexical; a document missing
// from one list contributes 0 for that source. The result is ordered by
// combined score descending with document id ascending as the tie-break, and
// truncated to limit. Identical inputs always produce the identical ordering.
func fuseCandidates(lexical, semantic []domain.ScoredCandidate, alpha float64, limit int) []domain.FusedCandidate {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	lexNorm := normalizeMinMax(lexical)
	semNorm := normalizeMinMax(semantic)

	seen := make(map[string]struct{}, len(lexNorm)+len(semNorm))
	out := make([]domain.FusedCandidate, 0, len(lexNorm)+len(semNorm))
	addCandidate := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, domain.FusedCandidate{
			DocumentID: id,
			Score:      alpha*semNorm[id] + (1-alpha)*lexNorm[id],
		})
	}
	for _, c := range lexical {
		addCandidate(c.DocumentID)
	}
	for _, c := range semantic {
		addCandidate(c.DocumentID)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocumentID < out[j].DocumentID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i
	}
	return out
}

// normalizeMinMax scales a source list's scores to the unit interval. A list
// with a single candidate, or where every score is identical, maps all
// entries to 1.0 so the source still contributes a full-strength vote.
func normalizeMinMax(candidates []domain.ScoredCandidate) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	if len(candidates) == 0 {
		return out
	}

	minScore := candidates[0].Score
	maxScore := candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < minScore {
			minScore = c.Score
		}
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}

	spread := maxScore - minScore
	for _, c := range candidates {
		if spread <= 0 {
			out[c.DocumentID] = 1.0
			continue
		}
		out[c.DocumentID] = (c.Score - minScore) / spread
	}
	return out
}
