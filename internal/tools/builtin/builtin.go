// Package builtin provides the reference video-production tools. They are
// deterministic local implementations of the production wire contracts:
// script writing, b-roll sourcing, voiceover synthesis, and final assembly
// all produce real files under the project directory so the pipeline works
// end to end without external services.
package builtin

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/tools"
)

// Deps carries the shared dependencies of the builtin tools.
type Deps struct {
	Projects *project.Store
}

// RegisterAll registers the four production tools.
func RegisterAll(reg *tools.Registry, deps Deps) error {
	if deps.Projects == nil {
		return fmt.Errorf("builtin: project store is required")
	}
	for _, t := range []tools.Tool{
		ScriptWriter(deps),
		BrollFinder(deps),
		VoiceoverGenerator(deps),
		VideoProcessor(deps),
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// projectID extracts the executor-injected project id, falling back to the
// session id so single-session projects need no explicit mapping.
func projectID(input map[string]any) (string, error) {
	for _, key := range []string{"project_id", "session_id"} {
		if v, ok := input[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no project context in input")
}

func stringArg(input map[string]any, key string) string {
	v, _ := input[key].(string)
	return strings.TrimSpace(v)
}

// intArg tolerates the numeric types JSON decoding and callers produce.
func intArg(input map[string]any, key string, fallback int) int {
	switch v := input[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// slug converts free text into a filesystem-safe fragment.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "untitled"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
