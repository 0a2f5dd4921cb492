package agent

import (
	"time"

	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/pkg/models"
)

// failurePatternsKey is the preferences entry holding failure records.
const failurePatternsKey = "failure_patterns"

// learnSuccess writes a completed step's style-like args into preferences
// as preferred_* values, feeding future parameter enhancement.
func (l *Loop) learnSuccess(step *models.Step) {
	if len(step.Args) == 0 {
		return
	}
	prefs := make(map[string]any)
	switch toolFamily(step.Tool) {
	case familyScript:
		if v, ok := step.Args["style"]; ok {
			prefs["preferred_style"] = v
		}
		if v, ok := step.Args["length"]; ok {
			prefs["preferred_length"] = v
		}
	case familyMedia:
		if v, ok := step.Args["count"]; ok {
			prefs["preferred_count"] = v
		}
	case familyVoiceover:
		if v, ok := step.Args["voice"]; ok {
			prefs["preferred_voice"] = v
		}
	}
	if len(prefs) > 0 {
		l.deps.Sessions.MergePreferences(l.sessionID, prefs)
	}
}

// learnFailure appends a failure-pattern record to preferences.
func (l *Loop) learnFailure(step *models.Step, err error) {
	record := map[string]any{
		"tool":      step.Tool,
		"kind":      string(tools.KindOf(err)),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	var patterns []any
	if snap, ok := l.deps.Sessions.Snapshot(l.sessionID); ok {
		if existing, ok := snap.Preferences[failurePatternsKey].([]any); ok {
			patterns = existing
		}
	}
	patterns = append(patterns, record)
	l.deps.Sessions.MergePreferences(l.sessionID, map[string]any{
		failurePatternsKey: patterns,
	})
}
