package models

import "time"

// FieldType enumerates the parameter types a tool schema may declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
	FieldAny     FieldType = "any"
)

// SchemaField describes one parameter of a tool's input or output schema.
type SchemaField struct {
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Schema maps parameter names to their declarations.
type Schema map[string]SchemaField

// ToolDescriptor declares a tool's identity and contracts. Descriptors are
// registered at process start and discoverable at runtime.
type ToolDescriptor struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	InputSchema  Schema   `json:"input_schema,omitempty"`
	OutputSchema Schema   `json:"output_schema,omitempty"`
	Category     string   `json:"category,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Examples     []string `json:"examples,omitempty"`
	Version      string   `json:"version,omitempty"`
}

// ToolExecution is the durable record of one tool invocation. Records are
// retained for the session lifetime and indexed for retrieval.
type ToolExecution struct {
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}
