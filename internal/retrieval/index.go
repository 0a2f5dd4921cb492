// Package retrieval provides semantic context retrieval over session
// documents: conversations, scripts, tool results, and preferences.
//
// Two interchangeable backends implement Index: an embedded vector store
// (chromem) and an in-memory keyword index. The keyword index is a fully
// functional mode, not degraded behavior; callers must not assume the
// vector mode is present.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/pkg/models"
)

// Index is the retrieval contract shared by both backends.
type Index interface {
	// AddDocument stores content with coerced metadata and returns the
	// document id.
	AddDocument(ctx context.Context, content string, metadata map[string]any) (string, error)

	// Search returns up to topK hits with similarity at or above threshold,
	// ranked by relevance descending.
	Search(ctx context.Context, query string, topK int, threshold float64) ([]models.SearchResult, error)

	// ContextForQuery concatenates top matches into a prompt-ready string,
	// truncated to a whitespace-token budget.
	ContextForQuery(ctx context.Context, query string, maxTokens int) (string, error)

	// ClearSession removes every document whose metadata carries the
	// given session id.
	ClearSession(ctx context.Context, sessionID string) error

	Close() error
}

// CoerceMetadata flattens metadata to primitives. Strings, bools, and
// numeric values pass through; everything else is converted to its string
// form (JSON when possible), a concession to vector-store constraints.
func CoerceMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[k] = v
		default:
			if data, err := json.Marshal(v); err == nil {
				out[k] = string(data)
			} else {
				out[k] = fmt.Sprint(v)
			}
		}
	}
	return out
}

// countTokens approximates token count by whitespace splitting.
func countTokens(s string) int {
	return len(strings.Fields(s))
}

// buildContext concatenates result contents under a token budget.
func buildContext(results []models.SearchResult, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	var b strings.Builder
	used := 0
	for _, r := range results {
		content := r.Document.Content
		tokens := countTokens(content)
		if used+tokens > maxTokens {
			remaining := maxTokens - used
			if remaining <= 0 {
				break
			}
			fields := strings.Fields(content)
			if len(fields) > remaining {
				fields = fields[:remaining]
			}
			content = strings.Join(fields, " ")
			tokens = remaining
		}
		if b.Len() > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(content)
		used += tokens
		if used >= maxTokens {
			break
		}
	}
	return b.String()
}
