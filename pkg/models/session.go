package models

import "time"

// MaxConversationEntries caps the conversation bucket per session.
const MaxConversationEntries = 50

// AssetKind names the project asset buckets.
type AssetKind string

const (
	AssetScripts    AssetKind = "scripts"
	AssetMediaFiles AssetKind = "media_files"
	AssetVoiceovers AssetKind = "voiceovers"
	AssetVideos     AssetKind = "videos"
)

// AssetRecord is one entry in a project asset bucket.
type AssetRecord struct {
	Path      string         `json:"path,omitempty"`
	Content   string         `json:"content,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ProjectState holds the named asset buckets of a session's project.
type ProjectState struct {
	Scripts    []AssetRecord `json:"scripts,omitempty"`
	MediaFiles []AssetRecord `json:"media_files,omitempty"`
	Voiceovers []AssetRecord `json:"voiceovers,omitempty"`
	Videos     []AssetRecord `json:"videos,omitempty"`
}

// Cursor tracks the agent loop's position within the current workflow.
type Cursor struct {
	StepIndex int    `json:"step_index"`
	Iteration int    `json:"iteration"`
	State     string `json:"state,omitempty"`
}

// Session is the per-session working memory of the orchestration core.
// It is mutated exclusively by the session's agent loop; other readers
// receive copies via snapshot getters on the store.
type Session struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	LastActive  time.Time `json:"last_active"`

	Conversation   []ConversationEntry `json:"conversation,omitempty"`
	Context        map[string]any      `json:"context,omitempty"`
	FrontendState  map[string]any      `json:"frontend_state,omitempty"`
	AIContext      map[string]any      `json:"ai_context,omitempty"`
	Project        ProjectState        `json:"project"`
	Preferences    map[string]any      `json:"preferences,omitempty"`
	ToolExecutions []ToolExecution     `json:"tool_executions,omitempty"`
	Workflow       *Plan               `json:"workflow,omitempty"`
	Cursor         Cursor              `json:"cursor"`
}
