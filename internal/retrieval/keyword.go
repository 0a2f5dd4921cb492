package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/pkg/models"
)

// KeywordIndex is the in-memory fallback backend. Documents are scored by
// the fraction of query terms they contain.
type KeywordIndex struct {
	mu   sync.RWMutex
	docs map[string]models.Document
}

// NewKeywordIndex creates an empty keyword index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{docs: make(map[string]models.Document)}
}

// AddDocument stores the content and returns its id.
func (k *KeywordIndex) AddDocument(ctx context.Context, content string, metadata map[string]any) (string, error) {
	doc := models.Document{
		ID:        uuid.NewString(),
		Content:   content,
		Metadata:  CoerceMetadata(metadata),
		Timestamp: time.Now().UTC(),
	}
	k.mu.Lock()
	k.docs[doc.ID] = doc
	k.mu.Unlock()
	return doc.ID, nil
}

// Search scores every document by matched query-term fraction.
func (k *KeywordIndex) Search(ctx context.Context, query string, topK int, threshold float64) ([]models.SearchResult, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	k.mu.RLock()
	results := make([]models.SearchResult, 0, len(k.docs))
	for _, doc := range k.docs {
		lower := strings.ToLower(doc.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(terms))
		if score < threshold {
			continue
		}
		results = append(results, models.SearchResult{
			Document:   doc,
			Similarity: score,
			Relevance:  score,
		})
	}
	k.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Document.Timestamp.After(results[j].Document.Timestamp)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ContextForQuery concatenates top matches under a token budget.
func (k *KeywordIndex) ContextForQuery(ctx context.Context, query string, maxTokens int) (string, error) {
	results, err := k.Search(ctx, query, 5, 0)
	if err != nil {
		return "", err
	}
	return buildContext(results, maxTokens), nil
}

// ClearSession removes all documents carrying the session id.
func (k *KeywordIndex) ClearSession(ctx context.Context, sessionID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id, doc := range k.docs {
		if sid, ok := doc.Metadata["session_id"].(string); ok && sid == sessionID {
			delete(k.docs, id)
		}
	}
	return nil
}

// Close is a no-op for the in-memory index.
func (k *KeywordIndex) Close() error { return nil }

var _ Index = (*KeywordIndex)(nil)
