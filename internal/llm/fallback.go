package llm

import (
	"encoding/json"
	"strings"
	"unicode"
)

// fallbackToolCall mirrors the workflow-response tool_calls entry shape.
type fallbackToolCall struct {
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description"`
}

type fallbackResponse struct {
	ResponseType string             `json:"response_type"`
	UserMessage  string             `json:"user_message"`
	Reasoning    string             `json:"reasoning,omitempty"`
	ToolCalls    []fallbackToolCall `json:"tool_calls,omitempty"`
	Suggestions  []string           `json:"suggestions,omitempty"`
	Capabilities []string           `json:"capabilities,omitempty"`
}

// Fallback synthesizes a deterministic planner response from intent cues in
// the user prompt. It is the mechanism that keeps the agent loop
// operational when the LLM is unavailable: the output is always valid JSON
// in one of the canonical response shapes.
func Fallback(userPrompt string) string {
	lower := strings.ToLower(strings.TrimSpace(userPrompt))
	topic := extractTopic(userPrompt)

	var resp fallbackResponse
	switch {
	case isGreeting(lower):
		resp = fallbackResponse{
			ResponseType: "conversational",
			UserMessage:  "Hello! I can help you write scripts, find b-roll, generate voiceovers, and assemble videos. What would you like to make?",
		}

	case strings.Contains(lower, "video"):
		if topic == "" {
			topic = "your topic"
		}
		resp = fallbackResponse{
			ResponseType: "workflow",
			UserMessage:  "I'll create a video about " + topic + ": script, b-roll, voiceover, and final assembly.",
			Reasoning:    "Video request detected; running the full production pipeline.",
			ToolCalls: []fallbackToolCall{
				{Tool: "script_writer", Args: map[string]any{"topic": topic}, Description: "Write the script"},
				{Tool: "broll_finder", Args: map[string]any{"query": topic, "count": 5}, Description: "Find b-roll footage"},
				{Tool: "voiceover_generator", Args: map[string]any{"voice": "default"}, Description: "Generate the voiceover"},
				{Tool: "video_processor", Args: map[string]any{"title": topic}, Description: "Assemble the final video"},
			},
		}

	case strings.Contains(lower, "b-roll") || strings.Contains(lower, "broll"):
		if topic == "" {
			topic = strings.TrimSpace(userPrompt)
		}
		resp = fallbackResponse{
			ResponseType: "workflow",
			UserMessage:  "I'll find b-roll for " + topic + ".",
			Reasoning:    "B-roll request detected.",
			ToolCalls: []fallbackToolCall{
				{Tool: "broll_finder", Args: map[string]any{"query": topic, "count": 5}, Description: "Find b-roll footage"},
			},
		}

	case strings.Contains(lower, "voiceover") || strings.Contains(lower, "voice over"):
		resp = fallbackResponse{
			ResponseType: "workflow",
			UserMessage:  "I'll generate a voiceover from your script.",
			Reasoning:    "Voiceover request detected.",
			ToolCalls: []fallbackToolCall{
				{Tool: "voiceover_generator", Args: map[string]any{"voice": "default"}, Description: "Generate the voiceover"},
			},
		}

	case strings.Contains(lower, "script"):
		if topic == "" {
			topic = "your topic"
		}
		resp = fallbackResponse{
			ResponseType: "workflow",
			UserMessage:  "I'll write a script about " + topic + ".",
			Reasoning:    "Script request detected.",
			ToolCalls: []fallbackToolCall{
				{Tool: "script_writer", Args: map[string]any{"topic": topic}, Description: "Write the script"},
			},
		}

	case isQuestion(lower):
		resp = fallbackResponse{
			ResponseType: "informational",
			UserMessage:  "I can write scripts, find b-roll footage, generate voiceovers, and assemble finished videos.",
			Capabilities: []string{"script writing", "b-roll search", "voiceover generation", "video assembly"},
			Suggestions:  []string{"Try: write a script about space", "Try: make me a video on your topic"},
		}

	default:
		resp = fallbackResponse{
			ResponseType: "conversational",
			UserMessage:  "Tell me what you'd like to create. For example: \"make me a video on the ocean\".",
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		// Marshal of a plain struct cannot realistically fail; keep the
		// loop alive regardless.
		return `{"response_type":"conversational","user_message":"Tell me what you'd like to create."}`
	}
	return string(data)
}

var greetingWords = []string{"hi", "hello", "hey", "hiya", "howdy", "good morning", "good afternoon", "good evening"}

func isGreeting(lower string) bool {
	for _, g := range greetingWords {
		if lower == g || strings.HasPrefix(lower, g+" ") || strings.HasPrefix(lower, g+"!") || strings.HasPrefix(lower, g+",") {
			return true
		}
	}
	return false
}

var questionPrefixes = []string{"what", "how", "why", "when", "where", "who", "can ", "could ", "do you", "does ", "is "}

func isQuestion(lower string) bool {
	if strings.HasSuffix(lower, "?") {
		return true
	}
	for _, p := range questionPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// topicMarkers are checked in order; the text after the first match is the
// topic.
var topicMarkers = []string{" about ", " on ", " regarding ", " covering ", " for "}

func extractTopic(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, marker := range topicMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		topic := strings.TrimSpace(prompt[idx+len(marker):])
		topic = strings.Trim(topic, ".!?\"' ")
		if topic != "" {
			return capitalizeFirst(topic)
		}
	}
	return ""
}

func capitalizeFirst(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
