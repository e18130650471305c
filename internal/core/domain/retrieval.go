package domain

// ScoreSource identifies which scorer produced a raw candidate score.
type ScoreSource string

const (
	SourceLexical  ScoreSource = "lexical"
	SourceSemantic ScoreSource = "semantic"
)

// ScoredCandidate is a per-query, per-scorer ranking entry. Never persisted.
type ScoredCandidate struct {
	DocumentID string
	Score      float64
	Source     ScoreSource
}

// FusedCandidate is a deduplicated candidate with its combined score after
// fusion. Rank is the zero-based position in the fused ordering.
type FusedCandidate struct {
	DocumentID string
	Score      float64
	Rank       int
}

// Answer is the generated response for a query, with citations restricted to
// documents that were actually shown.
type Answer struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Citations  []string `json:"citations,omitempty"`
}

// RetrievalResult is what the retrieval pipeline hands back to the caller.
// Every document in Documents has passed the authorization filter.
type RetrievalResult struct {
	Documents    []DocumentSummary `json:"results"`
	ProvenanceID string            `json:"provenance_id"`
	SessionID    string            `json:"session_id"`
	Answer       *Answer           `json:"answer,omitempty"`
}
