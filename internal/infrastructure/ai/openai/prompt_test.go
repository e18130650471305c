package openai

import (
	"testing"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

func TestExtractCitationsDropsUnknownIDs(t *testing.T) {
	docs := []domain.Document{{ID: "doc-a"}, {ID: "doc-b"}}
	text := "See [doc:doc-a] and also [doc:doc-a] again, plus [doc:made-up]."

	citations := extractCitations(text, docs)
	if len(citations) != 1 || citations[0] != "doc-a" {
		t.Fatalf("expected only doc-a once, got %v", citations)
	}
}

func TestConfidenceGrowsWithCitationCoverage(t *testing.T) {
	docs := []domain.Document{{ID: "doc-a"}, {ID: "doc-b"}}

	none := confidenceFor(nil, docs)
	half := confidenceFor([]string{"doc-a"}, docs)
	full := confidenceFor([]string{"doc-a", "doc-b"}, docs)

	if !(none < half && half < full) {
		t.Fatalf("expected monotonic confidence, got %f %f %f", none, half, full)
	}
	if full != 1.0 {
		t.Fatalf("full coverage should score 1.0, got %f", full)
	}
}

func TestBuildMessagesKeepsHistoryOrder(t *testing.T) {
	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "first"},
		{Role: domain.RoleAssistant, Content: "second"},
		{Role: "system", Content: "must be dropped"},
	}
	messages := buildMessages("question", []domain.Document{{ID: "doc-a", Title: "T", Body: "B"}}, history)

	if len(messages) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d messages", len(messages))
	}
	if messages[1]["content"] != "first" || messages[2]["content"] != "second" {
		t.Fatalf("history order not preserved: %v", messages)
	}
}
