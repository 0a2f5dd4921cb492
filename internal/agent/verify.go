package agent

import (
	"os"
	"strings"
)

// tool families recognized by verification, GUI derivation, and learning.
type family int

const (
	familyOther family = iota
	familyScript
	familyMedia
	familyVoiceover
	familyVideo
)

func toolFamily(tool string) family {
	t := strings.ToLower(tool)
	switch {
	case strings.Contains(t, "script"):
		return familyScript
	case strings.Contains(t, "broll"), strings.Contains(t, "b-roll"), strings.Contains(t, "media"):
		return familyMedia
	case strings.Contains(t, "voiceover"), strings.Contains(t, "voice"), strings.Contains(t, "tts"):
		return familyVoiceover
	case strings.Contains(t, "video"):
		return familyVideo
	default:
		return familyOther
	}
}

// Verify applies the deterministic per-family predicate to a tool result.
// Tools outside the recognized families pass with any non-empty output.
func Verify(tool string, result map[string]any) bool {
	if len(result) == 0 {
		return false
	}
	switch toolFamily(tool) {
	case familyScript:
		text, _ := result["script_text"].(string)
		return strings.TrimSpace(text) != ""
	case familyMedia:
		for _, f := range mediaFiles(result) {
			if _, err := os.Stat(f); err == nil {
				return true
			}
		}
		return false
	case familyVoiceover:
		path, _ := result["audio_path"].(string)
		return path != ""
	case familyVideo:
		path, _ := result["video_path"].(string)
		return path != ""
	default:
		return true
	}
}
