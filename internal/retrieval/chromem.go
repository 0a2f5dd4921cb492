package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/clipforge/clipforge/pkg/models"
)

const collectionName = "clipforge"

// VectorIndex is the embedded vector backend built on chromem-go. It keeps
// vectors in memory with optional file persistence and requires no external
// service. Similarity is cosine, reported by chromem as 1 - distance.
type VectorIndex struct {
	db        *chromem.DB
	col       *chromem.Collection
	embed     chromem.EmbeddingFunc
	persist   string
	mu        sync.Mutex
	logger    *slog.Logger
	timestamp map[string]time.Time
}

// VectorIndexConfig configures the chromem backend.
type VectorIndexConfig struct {
	// PersistPath enables gob persistence when non-empty.
	PersistPath string

	// Embedding overrides the default local hashing embedder.
	Embedding chromem.EmbeddingFunc

	Logger *slog.Logger
}

// NewVectorIndex creates the chromem-backed index.
func NewVectorIndex(cfg VectorIndexConfig) (*VectorIndex, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	embed := cfg.Embedding
	if embed == nil {
		embed = HashingEmbedding
	}

	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("create persist directory: %w", err)
		}
		dbPath := filepath.Join(cfg.PersistPath, "vectors.gob")
		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, false)
			if err != nil {
				logger.Warn("failed to load vector database, starting empty", "path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &VectorIndex{
		db:        db,
		col:       col,
		embed:     embed,
		persist:   cfg.PersistPath,
		logger:    logger,
		timestamp: make(map[string]time.Time),
	}, nil
}

// AddDocument embeds and stores content, returning the document id.
func (v *VectorIndex) AddDocument(ctx context.Context, content string, metadata map[string]any) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	coerced := CoerceMetadata(metadata)
	strMeta := make(map[string]string, len(coerced)+1)
	for k, val := range coerced {
		strMeta[k] = fmt.Sprint(val)
	}
	strMeta["timestamp"] = now.Format(time.RFC3339)

	embedding, err := v.embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed document: %w", err)
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMeta,
		Embedding: embedding,
	}
	if err := v.col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	v.mu.Lock()
	v.timestamp[id] = now
	v.mu.Unlock()
	return id, nil
}

// Search queries by embedded text and filters by similarity threshold.
func (v *VectorIndex) Search(ctx context.Context, query string, topK int, threshold float64) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	// chromem rejects queries asking for more results than documents held.
	if count := v.col.Count(); count < topK {
		if count == 0 {
			return nil, nil
		}
		topK = count
	}

	hits, err := v.col.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		sim := float64(hit.Similarity)
		if sim < threshold {
			continue
		}
		meta := make(map[string]any, len(hit.Metadata))
		for k, val := range hit.Metadata {
			meta[k] = val
		}
		ts := v.docTime(hit.ID, hit.Metadata)
		results = append(results, models.SearchResult{
			Document: models.Document{
				ID:        hit.ID,
				Content:   hit.Content,
				Metadata:  meta,
				Embedding: hit.Embedding,
				Timestamp: ts,
			},
			Similarity: sim,
			Relevance:  sim,
		})
	}
	return results, nil
}

func (v *VectorIndex) docTime(id string, meta map[string]string) time.Time {
	v.mu.Lock()
	ts, ok := v.timestamp[id]
	v.mu.Unlock()
	if ok {
		return ts
	}
	if raw, ok := meta["timestamp"]; ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// ContextForQuery concatenates top matches under a token budget.
func (v *VectorIndex) ContextForQuery(ctx context.Context, query string, maxTokens int) (string, error) {
	results, err := v.Search(ctx, query, 5, 0)
	if err != nil {
		return "", err
	}
	return buildContext(results, maxTokens), nil
}

// ClearSession removes every document tagged with the session id.
func (v *VectorIndex) ClearSession(ctx context.Context, sessionID string) error {
	if err := v.col.Delete(ctx, map[string]string{"session_id": sessionID}, nil); err != nil {
		return fmt.Errorf("clear session documents: %w", err)
	}
	return nil
}

// Close flushes the database when persistence is enabled.
func (v *VectorIndex) Close() error {
	if v.persist == "" {
		return nil
	}
	if err := v.db.Export(filepath.Join(v.persist, "vectors.gob"), false, ""); err != nil {
		return fmt.Errorf("persist vector database: %w", err)
	}
	return nil
}

var _ Index = (*VectorIndex)(nil)
