// Package models provides domain types for the clipforge orchestration core.
package models

import "time"

// EventType identifies the kind of outbound session event.
type EventType string

const (
	// EventConnectionEstablished is the first event on any new attachment.
	EventConnectionEstablished EventType = "connection_established"

	// EventThinking carries short human-readable reasoning milestones.
	EventThinking EventType = "thinking"

	// EventAIMessage carries assistant text, whole or streamed in partials.
	EventAIMessage EventType = "ai_message"

	// EventToolCall announces an imminent tool invocation.
	EventToolCall EventType = "tool_call"

	// EventToolResult reports the outcome of a tool invocation.
	EventToolResult EventType = "tool_result"

	// EventProgress reports coarse per-step progress.
	EventProgress EventType = "progress"

	// EventWorkflowStatus reports state-machine milestones.
	EventWorkflowStatus EventType = "workflow_status"

	// EventWorkflowProgress reports plan-level completion percentage.
	EventWorkflowProgress EventType = "workflow_progress"

	// EventWorkflowComplete reports the end of a workflow with artifacts.
	EventWorkflowComplete EventType = "workflow_complete"

	// EventGUIUpdate carries post-tool artifact hints for the UI.
	EventGUIUpdate EventType = "gui_update"

	// EventAlternativeSuggestions offers recovery actions after a terminal
	// step failure.
	EventAlternativeSuggestions EventType = "alternative_suggestions"

	// EventError reports a recoverable error.
	EventError EventType = "error"

	// EventPong answers an inbound ping.
	EventPong EventType = "pong"

	// EventHeartbeatAck answers an inbound heartbeat.
	EventHeartbeatAck EventType = "heartbeat_ack"
)

// Event is the envelope for every outbound session event.
//
// MessageID is unique within a session and monotonic in emission order.
// Exactly one payload pointer should be non-nil for a given Type; liveness
// replies (pong, heartbeat_ack) and connection_established carry none.
type Event struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Progress, when set, is in [0,1].
	Progress *float64 `json:"progress,omitempty"`

	Thinking         *ThinkingPayload         `json:"thinking,omitempty"`
	AIMessage        *AIMessagePayload        `json:"ai_message,omitempty"`
	ToolCall         *ToolCallPayload         `json:"tool_call,omitempty"`
	ToolResult       *ToolResultPayload       `json:"tool_result,omitempty"`
	StepProgress     *StepProgressPayload     `json:"step_progress,omitempty"`
	WorkflowStatus   *WorkflowStatusPayload   `json:"workflow_status,omitempty"`
	WorkflowProgress *WorkflowProgressPayload `json:"workflow_progress,omitempty"`
	WorkflowComplete *WorkflowCompletePayload `json:"workflow_complete,omitempty"`
	GUIUpdate        *GUIUpdatePayload        `json:"gui_update,omitempty"`
	Suggestions      *SuggestionsPayload      `json:"suggestions,omitempty"`
	Error            *ErrorPayload            `json:"error,omitempty"`
}

// ThinkingPayload is a short human-readable reasoning note.
type ThinkingPayload struct {
	Text string `json:"text"`
}

// AIMessagePayload carries assistant text. Partial chunks of one streamed
// message share the same MessageID and end with a single non-partial event
// carrying the full content.
type AIMessagePayload struct {
	Content   string  `json:"content"`
	IsPartial bool    `json:"is_partial,omitempty"`
	Progress  float64 `json:"progress,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
}

// ToolCallPayload announces a tool invocation.
type ToolCallPayload struct {
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args,omitempty"`
	StepID      string         `json:"step_id,omitempty"`
	Description string         `json:"description,omitempty"`
}

// ToolResultPayload reports the outcome of a tool invocation.
type ToolResultPayload struct {
	Tool    string         `json:"tool"`
	StepID  string         `json:"step_id,omitempty"`
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// StepProgressPayload reports coarse progress for one step.
type StepProgressPayload struct {
	StepID  string  `json:"step_id"`
	Percent float64 `json:"percent"`
	Status  string  `json:"status"`
}

// WorkflowStatusPayload reports a state-machine milestone.
type WorkflowStatusPayload struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// WorkflowProgressPayload reports plan-level completion.
type WorkflowProgressPayload struct {
	Percent        float64 `json:"percent"`
	CompletedSteps int     `json:"completed_steps"`
	TotalSteps     int     `json:"total_steps"`
}

// WorkflowCompletePayload summarizes a finished workflow.
type WorkflowCompletePayload struct {
	Summary   string         `json:"summary"`
	Artifacts map[string]any `json:"artifacts,omitempty"`
}

// GUIUpdateType identifies the artifact class of a gui_update event.
type GUIUpdateType string

const (
	GUIScriptCreated    GUIUpdateType = "script_created"
	GUIMediaDownloaded  GUIUpdateType = "media_downloaded"
	GUIVoiceoverCreated GUIUpdateType = "voiceover_created"
	GUIVideoCreated     GUIUpdateType = "video_created"
)

// GUIUpdatePayload carries a post-tool artifact hint for the UI.
type GUIUpdatePayload struct {
	UpdateType GUIUpdateType  `json:"update_type"`
	Data       map[string]any `json:"data,omitempty"`
}

// Suggestion is one recovery action offered after a failure.
type Suggestion struct {
	Label  string         `json:"label"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
}

// SuggestionsPayload offers alternatives after a terminal step failure.
type SuggestionsPayload struct {
	FailedTool   string       `json:"failed_tool"`
	Alternatives []Suggestion `json:"alternatives"`
}

// ErrorPayload reports a recoverable error to the client.
type ErrorPayload struct {
	Message string `json:"message"`
}
