package domain

import "time"

// ProvenanceRecord captures what a specific query returned, for auditing and
// feedback linkage. Immutable once written, except for FeedbackRating which
// is set at most once by the first matching feedback entry.
type ProvenanceRecord struct {
	ID             string    `json:"id"`
	Subject        string    `json:"subject"`
	Query          string    `json:"query"`
	SessionID      string    `json:"session_id,omitempty"`
	DocumentIDs    []string  `json:"document_ids"`
	LatencyMillis  float64   `json:"latency_ms"`
	Confidence     *float64  `json:"confidence,omitempty"`
	FeedbackRating *int      `json:"feedback_rating,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Feedback rating bounds. Ratings outside the range are rejected as invalid
// input before anything is written.
const (
	RatingMin = 1
	RatingMax = 5
)

// FeedbackEntry is an append-only relevance judgment tied to a provenance
// record. RelevantDocIDs may only credit documents the record actually
// returned; anything else is ignored.
type FeedbackEntry struct {
	ID             string    `json:"id"`
	ProvenanceID   string    `json:"provenance_id"`
	Rating         int       `json:"rating"`
	Helpful        bool      `json:"helpful"`
	Comment        string    `json:"comment,omitempty"`
	RelevantDocIDs []string  `json:"relevant_doc_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one message in a session, append-only and ordered by
// timestamp within the session.
type ConversationTurn struct {
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	DocumentIDs []string  `json:"document_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnalyticsSummary aggregates usage and feedback signals for reporting.
type AnalyticsSummary struct {
	TotalQueries   int64      `json:"total_queries"`
	TotalFeedback  int64      `json:"total_feedback"`
	AverageRating  float64    `json:"average_rating"`
	AverageLatency float64    `json:"average_latency_ms"`
	TopViewed      []Document `json:"top_viewed"`
}
