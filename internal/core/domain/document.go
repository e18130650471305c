package domain

import "time"

// Document is a retrievable knowledge-base entry. View and helpful counters
// are owned by the document index and only move through its increment
// operations; they never decrease.
type Document struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Sensitive    bool      `json:"sensitive"`
	Department   string    `json:"department,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Author       string    `json:"author,omitempty"`
	Version      string    `json:"version"`
	ViewCount    int64     `json:"view_count"`
	HelpfulCount int64     `json:"helpful_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DocumentSummary is the caller-facing projection of a retrieved document.
type DocumentSummary struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Sensitive bool    `json:"sensitive"`
	Score     float64 `json:"score"`
}
