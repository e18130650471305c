package openai

import (
	"fmt"
	"strings"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

const systemPrompt = `You are a careful knowledge-base assistant.
Answer using ONLY the provided documents. When you use a document, cite it
inline as [doc:ID]. If the documents do not contain the answer, say so
plainly instead of guessing.`

func buildMessages(question string, docs []domain.Document, history []domain.ConversationTurn) []map[string]string {
	var context strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&context, "[doc:%s] %s\n%s\n\n", doc.ID, doc.Title, doc.Body)
	}

	messages := make([]map[string]string, 0, len(history)+3)
	messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	for _, turn := range history {
		role := turn.Role
		if role != domain.RoleUser && role != domain.RoleAssistant {
			continue
		}
		messages = append(messages, map[string]string{"role": role, "content": turn.Content})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": fmt.Sprintf("Documents:\n\n%sQuestion: %s", context.String(), question),
	})
	return messages
}

// extractCitations collects [doc:ID] markers that reference documents the
// model was actually given. Hallucinated ids are dropped.
func extractCitations(text string, docs []domain.Document) []string {
	known := make(map[string]bool, len(docs))
	for _, doc := range docs {
		known[doc.ID] = true
	}

	seen := make(map[string]bool)
	var citations []string
	rest := text
	for {
		start := strings.Index(rest, "[doc:")
		if start < 0 {
			break
		}
		rest = rest[start+len("[doc:"):]
		end := strings.Index(rest, "]")
		if end < 0 {
			break
		}
		id := rest[:end]
		rest = rest[end+1:]
		if known[id] && !seen[id] {
			seen[id] = true
			citations = append(citations, id)
		}
	}
	return citations
}

// confidenceFor is a coverage heuristic: the more of the supplied documents
// the answer actually cites, the more grounded it is.
func confidenceFor(citations []string, docs []domain.Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	if len(citations) == 0 {
		return 0.3
	}
	coverage := float64(len(citations)) / float64(len(docs))
	return 0.5 + 0.5*coverage
}
