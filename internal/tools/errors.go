// Package tools provides the tool registry and the schema-validated,
// timeout-bounded execution substrate.
package tools

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes tool execution failures for the loop's retry and
// adjustment logic.
type ErrorKind string

const (
	// KindValidationInput means the input schema rejected the arguments.
	KindValidationInput ErrorKind = "validation_input"

	// KindValidationOutput means the output schema rejected the result.
	KindValidationOutput ErrorKind = "validation_output"

	// KindTimeout means the invocation exceeded its budget.
	KindTimeout ErrorKind = "timeout"

	// KindNotFound means no tool is registered under the name.
	KindNotFound ErrorKind = "not_found"

	// KindRateLimited means the tool reported an upstream rate limit.
	KindRateLimited ErrorKind = "rate_limited"

	// KindExecution means the tool itself failed.
	KindExecution ErrorKind = "execution"
)

// ErrRateLimited lets tool implementations signal an upstream rate limit;
// the executor maps it to KindRateLimited.
var ErrRateLimited = errors.New("rate limited")

// Error is a structured tool execution failure.
type Error struct {
	Kind    ErrorKind
	Tool    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a structured tool error.
func NewError(kind ErrorKind, tool string, cause error) *Error {
	return &Error{Kind: kind, Tool: tool, Cause: cause}
}

// KindOf extracts the error kind, defaulting to execution.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindExecution
}

// Retryable reports whether another attempt could plausibly succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindRateLimited, KindExecution:
		return true
	default:
		return false
	}
}
