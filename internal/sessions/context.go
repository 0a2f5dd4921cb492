package sessions

import (
	"time"

	"github.com/clipforge/clipforge/pkg/models"
)

// ComprehensiveContext returns a unified view of all session buckets.
//
// When the same field exists in more than one of the overlapping buckets
// (session-level patches, frontend snapshot, ai_context), the bucket
// written most recently wins; ties break by the fixed priority
// patches > frontend > ai_context. Non-overlapping buckets are attached
// under their own keys.
func (s *Store) ComprehensiveContext(id string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	times := s.stamped[id]

	// Ascending priority: later entries overwrite earlier ones on conflict.
	order := []struct {
		bucket string
		data   map[string]any
	}{
		{bucketAI, sess.AIContext},
		{bucketFrontend, sess.FrontendState},
		{bucketContext, sess.Context},
	}
	// Stable sort by write time keeps the listed priority for ties.
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			ti := bucketTime(times, order[i].bucket)
			tj := bucketTime(times, order[j].bucket)
			if tj.Before(ti) {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	merged := make(map[string]any)
	for _, layer := range order {
		for k, v := range layer.data {
			merged[k] = copyValue(v)
		}
	}

	merged["conversation"] = append([]models.ConversationEntry(nil), sess.Conversation...)
	merged["preferences"] = copyMap(sess.Preferences)
	merged["project"] = map[string]any{
		"scripts":     cloneAssets(sess.Project.Scripts),
		"media_files": cloneAssets(sess.Project.MediaFiles),
		"voiceovers":  cloneAssets(sess.Project.Voiceovers),
		"videos":      cloneAssets(sess.Project.Videos),
	}
	merged["tool_executions"] = append([]models.ToolExecution(nil), sess.ToolExecutions...)
	if sess.Workflow != nil {
		merged["workflow"] = clonePlan(sess.Workflow)
	}
	return merged
}

func bucketTime(times map[string]time.Time, bucket string) time.Time {
	if times == nil {
		return time.Time{}
	}
	return times[bucket]
}
