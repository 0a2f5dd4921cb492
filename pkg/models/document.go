package models

import "time"

// Document kinds tracked in retrieval metadata.
const (
	DocKindConversation = "conversation"
	DocKindScript       = "script"
	DocKindToolResult   = "tool_result"
	DocKindPreference   = "preference"
)

// Document is one retrievable unit of session context. Metadata must be
// flat: non-primitive values are coerced to strings before storage.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SearchResult is one ranked retrieval hit.
type SearchResult struct {
	Document   Document `json:"document"`
	Similarity float64  `json:"similarity"`
	Relevance  float64  `json:"relevance"`
}
