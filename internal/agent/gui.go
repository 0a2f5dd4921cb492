package agent

import (
	"github.com/clipforge/clipforge/pkg/models"
)

// guiUpdateFor derives the artifact hint for the frontend from a completed
// step's result. Unrecognized tool families produce no hint.
func guiUpdateFor(tool string, result map[string]any) *models.GUIUpdatePayload {
	switch toolFamily(tool) {
	case familyScript:
		text, _ := result["script_text"].(string)
		if text == "" {
			return nil
		}
		return &models.GUIUpdatePayload{
			UpdateType: models.GUIScriptCreated,
			Data:       map[string]any{"script_content": text},
		}
	case familyMedia:
		files := mediaFiles(result)
		if len(files) == 0 {
			return nil
		}
		return &models.GUIUpdatePayload{
			UpdateType: models.GUIMediaDownloaded,
			Data:       map[string]any{"media_files": files},
		}
	case familyVoiceover:
		path, _ := result["audio_path"].(string)
		if path == "" {
			return nil
		}
		return &models.GUIUpdatePayload{
			UpdateType: models.GUIVoiceoverCreated,
			Data:       map[string]any{"audio_path": path},
		}
	case familyVideo:
		path, _ := result["video_path"].(string)
		if path == "" {
			return nil
		}
		data := map[string]any{"video_path": path}
		if thumb, _ := result["thumbnail_path"].(string); thumb != "" {
			data["thumbnail"] = thumb
		}
		return &models.GUIUpdatePayload{
			UpdateType: models.GUIVideoCreated,
			Data:       data,
		}
	default:
		return nil
	}
}

// alternativesFor offers recovery actions after a terminal step failure.
func alternativesFor(tool string) *models.SuggestionsPayload {
	var alts []models.Suggestion
	switch toolFamily(tool) {
	case familyScript:
		alts = []models.Suggestion{
			{Label: "Try a shorter script", Action: "retry", Args: map[string]any{"length": 80}},
			{Label: "Describe the topic differently", Action: "rephrase"},
		}
	case familyMedia:
		alts = []models.Suggestion{
			{Label: "Try fewer clips", Action: "retry", Args: map[string]any{"count": 2}},
			{Label: "Broaden the search query", Action: "rephrase"},
		}
	case familyVoiceover:
		alts = []models.Suggestion{
			{Label: "Use the default voice", Action: "retry", Args: map[string]any{"voice": "default"}},
			{Label: "Write the script first", Action: "run_tool", Args: map[string]any{"tool": "script_writer"}},
		}
	case familyVideo:
		alts = []models.Suggestion{
			{Label: "Generate the missing assets first", Action: "run_tool", Args: map[string]any{"tool": "broll_finder"}},
			{Label: "Retry the assembly", Action: "retry"},
		}
	default:
		alts = []models.Suggestion{
			{Label: "Try again", Action: "retry"},
			{Label: "Ask for something else", Action: "rephrase"},
		}
	}
	return &models.SuggestionsPayload{FailedTool: tool, Alternatives: alts}
}
