package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

func corpusOf(docs ...domain.Document) []domain.Document { return docs }

func TestScoreLexicalOmitsDocumentsWithoutOverlap(t *testing.T) {
	corpus := corpusOf(
		domain.Document{ID: "doc-1", Title: "Budget Q4", Body: "Quarter four budget planning."},
		domain.Document{ID: "doc-2", Title: "Team offsite", Body: "Travel notes and agenda."},
	)

	scored := scoreLexical(corpus, "budget planning")
	require.Len(t, scored, 1)
	assert.Equal(t, "doc-1", scored[0].DocumentID)
	assert.Equal(t, domain.SourceLexical, scored[0].Source)
	assert.Greater(t, scored[0].Score, 0.0)
}

func TestScoreLexicalWeightsRareTermsHigher(t *testing.T) {
	// "budget" appears in every document, "severance" in one. The document
	// matching only the rare term must outrank the ones matching only the
	// common term.
	corpus := corpusOf(
		domain.Document{ID: "doc-1", Title: "Budget 2024", Body: "budget overview"},
		domain.Document{ID: "doc-2", Title: "Budget 2025", Body: "budget outlook"},
		domain.Document{ID: "doc-3", Title: "HR policy", Body: "severance terms and budget impact"},
	)

	scored := scoreLexical(corpus, "severance budget")
	require.Len(t, scored, 3)
	assert.Equal(t, "doc-3", scored[0].DocumentID)
}

func TestScoreLexicalRepeatedTermSaturates(t *testing.T) {
	corpus := corpusOf(
		domain.Document{ID: "doc-1", Title: "Spam", Body: "budget budget budget budget budget budget budget budget"},
		domain.Document{ID: "doc-2", Title: "Real", Body: "budget planning for the quarter"},
	)

	scored := scoreLexical(corpus, "budget planning")
	require.Len(t, scored, 2)
	// doc-2 matches two distinct terms; term stuffing in doc-1 must not
	// dominate via raw frequency.
	assert.Equal(t, "doc-2", scored[0].DocumentID)
}

func TestScoreLexicalTieBreaksByDocumentID(t *testing.T) {
	corpus := corpusOf(
		domain.Document{ID: "doc-b", Title: "alpha", Body: "one two"},
		domain.Document{ID: "doc-a", Title: "alpha", Body: "one two"},
	)

	scored := scoreLexical(corpus, "alpha")
	require.Len(t, scored, 2)
	assert.Equal(t, "doc-a", scored[0].DocumentID)
	assert.Equal(t, "doc-b", scored[1].DocumentID)
}

func TestScoreLexicalEmptyInputs(t *testing.T) {
	assert.Empty(t, scoreLexical(nil, "budget"))
	assert.Empty(t, scoreLexical(corpusOf(domain.Document{ID: "doc-1", Body: "text"}), ""))
	assert.Empty(t, scoreLexical(corpusOf(domain.Document{ID: "doc-1", Body: "text"}), "!!! ???"))
}
