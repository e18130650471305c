package usecase

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// scoreLexical ranks the corpus against the query using saturating term
// frequency weighted by inverse document frequency. Documents sharing no
// terms with the query are omitted entirely so the candidate set stays
// bounded. Pure function of the corpus snapshot and the query.
func scoreLexical(corpus []domain.Document, query string) []domain.ScoredCandidate {
	queryTerms := distinctTokens(query)
	if len(queryTerms) == 0 || len(corpus) == 0 {
		return nil
	}

	type docTerms struct {
		id     string
		counts map[string]int
		length int
	}

	docs := make([]docTerms, 0, len(corpus))
	totalLength := 0
	termDocFreq := make(map[string]int, len(queryTerms))

	for _, doc := range corpus {
		tokens := splitAlphaNumLower(doc.Title + " " + doc.Body)
		counts := make(map[string]int, len(queryTerms))
		for _, token := range tokens {
			if _, wanted := queryTerms[token]; wanted {
				counts[token]++
			}
		}
		for term := range counts {
			termDocFreq[term]++
		}
		docs = append(docs, docTerms{id: doc.ID, counts: counts, length: len(tokens)})
		totalLength += len(tokens)
	}

	avgLength := float64(totalLength) / float64(len(corpus))
	if avgLength <= 0 {
		avgLength = 1
	}
	n := float64(len(corpus))

	out := make([]domain.ScoredCandidate, 0, len(docs))
	for _, doc := range docs {
		if len(doc.counts) == 0 {
			continue
		}
		score := 0.0
		for term, tf := range doc.counts {
			df := float64(termDocFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := bm25K1 * (1 - bm25B + bm25B*float64(doc.length)/avgLength)
			score += idf * (float64(tf) * (bm25K1 + 1)) / (float64(tf) + norm)
		}
		out = append(out, domain.ScoredCandidate{
			DocumentID: doc.id,
			Score:      score,
			Source:     domain.SourceLexical,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

func distinctTokens(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
