package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationEntry is one turn in a session's conversation history.
type ConversationEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundKind identifies the kind of an inbound client message.
type InboundKind string

const (
	InboundUserMessage   InboundKind = "user_message"
	InboundPing          InboundKind = "ping"
	InboundHeartbeat     InboundKind = "heartbeat"
	InboundSuggestion    InboundKind = "suggestion"
	InboundContextUpdate InboundKind = "context_update"
)

// InboundMessage is the wire format of a message received on a session
// channel. Fields beyond Type are populated per kind.
type InboundMessage struct {
	Type InboundKind `json:"type"`

	// user_message
	Content       string          `json:"content,omitempty"`
	FrontendState json.RawMessage `json:"frontend_state,omitempty"`

	// suggestion
	SuggestionType string         `json:"suggestion_type,omitempty"`
	Action         map[string]any `json:"action,omitempty"`

	// context_update
	ContextType string         `json:"context_type,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}
