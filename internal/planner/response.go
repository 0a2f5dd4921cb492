// Package planner turns user turns into structured agent responses and
// adjusts running plans between steps.
package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResponseType discriminates the canonical planner response shapes.
type ResponseType string

const (
	ResponseConversational ResponseType = "conversational"
	ResponseInformational  ResponseType = "informational"
	ResponseWorkflow       ResponseType = "workflow"
	ResponseInteractive    ResponseType = "interactive"
	ResponseAdaptive       ResponseType = "adaptive"
)

// ToolCall is one planned tool invocation inside a workflow response.
type ToolCall struct {
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args,omitempty"`
	Description string         `json:"description,omitempty"`
	StepID      string         `json:"step_id,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
}

// Response is the planner's structured answer for one turn. Fields beyond
// ResponseType and UserMessage are shape-specific.
type Response struct {
	ResponseType ResponseType   `json:"response_type"`
	UserMessage  string         `json:"user_message"`
	Reasoning    string         `json:"reasoning,omitempty"`
	ContextHints map[string]any `json:"context_hints,omitempty"`

	// informational
	Suggestions  []string `json:"suggestions,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Tutorial     string   `json:"tutorial,omitempty"`

	// workflow
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// interactive
	UserInputRequest map[string]any `json:"user_input_request,omitempty"`

	// adaptive
	ContextUpdate map[string]any `json:"context_update,omitempty"`
	Preferences   map[string]any `json:"preferences,omitempty"`
	Learning      map[string]any `json:"learning,omitempty"`
}

// HasToolCalls reports whether the response starts a workflow.
func (r *Response) HasToolCalls() bool {
	return r.ResponseType == ResponseWorkflow && len(r.ToolCalls) > 0
}

// ParseResponse parses raw model output into a Response. Markdown code
// fences are stripped first. A non-nil error means the text was not a
// recognizable response document; callers may re-prompt once and then fall
// back to Classify.
func ParseResponse(raw string) (*Response, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	var resp Response
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	switch resp.ResponseType {
	case ResponseConversational, ResponseInformational, ResponseWorkflow,
		ResponseInteractive, ResponseAdaptive:
	case "":
		return nil, fmt.Errorf("parse response: missing response_type")
	default:
		return nil, fmt.Errorf("parse response: unknown response_type %q", resp.ResponseType)
	}
	if resp.ResponseType == ResponseWorkflow {
		for i, tc := range resp.ToolCalls {
			if tc.Tool == "" {
				return nil, fmt.Errorf("parse response: tool_calls[%d] has no tool", i)
			}
		}
	}
	return &resp, nil
}

// Classify wraps unparseable model text as a conversational response.
func Classify(raw string) *Response {
	text := strings.TrimSpace(stripFences(raw))
	if text == "" {
		text = "I wasn't able to form a plan for that. Could you rephrase?"
	}
	return &Response{
		ResponseType: ResponseConversational,
		UserMessage:  text,
	}
}

// stripFences removes a wrapping Markdown code fence, with or without a
// language tag, and trims surrounding prose down to the outermost JSON
// object when one is present.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 {
			// drop the language tag line
			if !strings.Contains(s[:idx], "{") {
				s = s[idx+1:]
			}
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
	}
	return s
}
