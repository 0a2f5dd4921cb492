// Package sessions provides the per-session context store: durable (for
// the session lifetime) working memory mutated by the agent loop and read
// by the transport through snapshot getters.
package sessions

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/pkg/models"
)

// Bucket names used for freshness tracking in the comprehensive view.
const (
	bucketContext  = "context"
	bucketFrontend = "frontend_state"
	bucketAI       = "ai_context"
)

// Store holds all live sessions. Sessions are created lazily on first use
// and live until explicit teardown or idle eviction.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	// stamped tracks the last write time per session bucket for the
	// freshness ordering of ComprehensiveContext.
	stamped map[string]map[string]time.Time
	logger  *slog.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*models.Session),
		stamped:  make(map[string]map[string]time.Time),
		logger:   logger,
	}
}

// GetOrCreate returns the live session for id, creating it when absent.
// An empty id allocates a fresh session. The returned pointer is the live
// session owned by the agent loop; readers outside the loop must use
// Snapshot.
func (s *Store) GetOrCreate(id string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	sess, ok := s.sessions[id]
	if !ok {
		now := time.Now().UTC()
		sess = &models.Session{
			ID:          id,
			CreatedAt:   now,
			LastUpdated: now,
			LastActive:  now,
			Context:     make(map[string]any),
			AIContext:   make(map[string]any),
			Preferences: make(map[string]any),
		}
		s.sessions[id] = sess
		s.stamped[id] = make(map[string]time.Time)
		s.logger.Debug("session created", "session_id", id)
	}
	return sess
}

// Exists reports whether a session is live.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Touch records activity for idle-eviction accounting.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActive = time.Now().UTC()
	}
}

// Remove tears down a session.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.stamped, id)
}

// EvictIdle removes sessions inactive for longer than ttl and returns
// their ids.
func (s *Store) EvictIdle(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, sess := range s.sessions {
		if sess.LastActive.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.stamped, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Snapshot returns a deep copy of the session, safe for concurrent readers.
func (s *Store) Snapshot(id string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return cloneSession(sess), true
}

func (s *Store) stamp(id, bucket string) {
	times, ok := s.stamped[id]
	if !ok {
		times = make(map[string]time.Time)
		s.stamped[id] = times
	}
	times[bucket] = time.Now().UTC()
}

func (s *Store) mutate(id string, fn func(*models.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	fn(sess)
	now := time.Now().UTC()
	sess.LastUpdated = now
	sess.LastActive = now
}

// UpdateContext shallow-merges patch into the session-level context bucket
// and stamps last_updated.
func (s *Store) UpdateContext(id string, patch map[string]any) {
	s.mutate(id, func(sess *models.Session) {
		if sess.Context == nil {
			sess.Context = make(map[string]any, len(patch))
		}
		for k, v := range patch {
			sess.Context[k] = v
		}
		s.stamp(id, bucketContext)
	})
}

// AppendConversation appends a turn and trims history to the cap. User
// turns are never lost within the cap window; trimming drops oldest first.
func (s *Store) AppendConversation(id string, role models.Role, content string) {
	s.mutate(id, func(sess *models.Session) {
		sess.Conversation = append(sess.Conversation, models.ConversationEntry{
			Role:      role,
			Content:   content,
			Timestamp: time.Now().UTC(),
		})
		if n := len(sess.Conversation); n > models.MaxConversationEntries {
			sess.Conversation = sess.Conversation[n-models.MaxConversationEntries:]
		}
	})
}

// Conversation returns a copy of the most recent n entries (all when n<=0).
func (s *Store) Conversation(id string, n int) []models.ConversationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	entries := sess.Conversation
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]models.ConversationEntry, len(entries))
	copy(out, entries)
	return out
}

// AddAsset appends a record to a project asset bucket, stamping it.
func (s *Store) AddAsset(id string, kind models.AssetKind, rec models.AssetRecord) {
	s.mutate(id, func(sess *models.Session) {
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now().UTC()
		}
		switch kind {
		case models.AssetScripts:
			sess.Project.Scripts = append(sess.Project.Scripts, rec)
		case models.AssetMediaFiles:
			sess.Project.MediaFiles = append(sess.Project.MediaFiles, rec)
		case models.AssetVoiceovers:
			sess.Project.Voiceovers = append(sess.Project.Voiceovers, rec)
		case models.AssetVideos:
			sess.Project.Videos = append(sess.Project.Videos, rec)
		default:
			s.logger.Warn("unknown asset kind", "kind", kind, "session_id", id)
		}
	})
}

// AppendToolExecution records one tool invocation in the append-only log.
func (s *Store) AppendToolExecution(id string, exec models.ToolExecution) {
	s.mutate(id, func(sess *models.Session) {
		sess.ToolExecutions = append(sess.ToolExecutions, exec)
	})
}

// MergePreferences merges key/value pairs into the preferences bucket.
func (s *Store) MergePreferences(id string, prefs map[string]any) {
	s.mutate(id, func(sess *models.Session) {
		if sess.Preferences == nil {
			sess.Preferences = make(map[string]any, len(prefs))
		}
		for k, v := range prefs {
			sess.Preferences[k] = v
		}
	})
}

// MergeAIContext merges into the planner scratch bucket.
func (s *Store) MergeAIContext(id string, patch map[string]any) {
	s.mutate(id, func(sess *models.Session) {
		if sess.AIContext == nil {
			sess.AIContext = make(map[string]any, len(patch))
		}
		for k, v := range patch {
			sess.AIContext[k] = v
		}
		s.stamp(id, bucketAI)
	})
}

// SyncFrontendState replaces the frontend snapshot and mirrors the most
// recent script (when present) into both ai_context.script and
// project.scripts. This is the one deliberate cross-bucket write: script
// content must not silently diverge between the frontend and planner views.
func (s *Store) SyncFrontendState(id string, snapshot map[string]any) {
	s.mutate(id, func(sess *models.Session) {
		sess.FrontendState = copyMap(snapshot)
		s.stamp(id, bucketFrontend)

		script := extractScript(snapshot)
		if script == "" {
			return
		}
		if sess.AIContext == nil {
			sess.AIContext = make(map[string]any)
		}
		sess.AIContext["script"] = script
		s.stamp(id, bucketAI)
		sess.Project.Scripts = append(sess.Project.Scripts, models.AssetRecord{
			Content:   script,
			Tool:      "frontend",
			Timestamp: time.Now().UTC(),
		})
	})
}

// BindProject associates a session with its on-disk project.
func (s *Store) BindProject(id, projectID string) {
	s.mutate(id, func(sess *models.Session) {
		sess.ProjectID = projectID
	})
}

// SetWorkflow stamps the current plan onto the session.
func (s *Store) SetWorkflow(id string, plan *models.Plan) {
	s.mutate(id, func(sess *models.Session) {
		sess.Workflow = plan
	})
}

// UpdateCursor records the agent loop's position.
func (s *Store) UpdateCursor(id string, cursor models.Cursor) {
	s.mutate(id, func(sess *models.Session) {
		sess.Cursor = cursor
	})
}

// extractScript pulls the most recent script text from a frontend snapshot.
// Accepted shapes: {"script": "..."} or {"scripts": [{"content": "..."}]}
// where the last element is the most recent.
func extractScript(snapshot map[string]any) string {
	if snapshot == nil {
		return ""
	}
	if v, ok := snapshot["script"].(string); ok && v != "" {
		return v
	}
	list, ok := snapshot["scripts"].([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	last, ok := list[len(list)-1].(map[string]any)
	if !ok {
		return ""
	}
	if v, ok := last["content"].(string); ok {
		return v
	}
	return ""
}
