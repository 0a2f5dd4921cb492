package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clipforge/clipforge/internal/retrieval"
	"github.com/clipforge/clipforge/internal/sessions"
	"github.com/clipforge/clipforge/pkg/models"
)

const (
	// DefaultTimeout bounds a single tool invocation.
	DefaultTimeout = 300 * time.Second

	// DefaultMaxConcurrent bounds parallel tool invocations.
	DefaultMaxConcurrent = 8

	// indexedResultLimit caps how much of a tool result is indexed for
	// retrieval.
	indexedResultLimit = 500
)

// ExecutorConfig tunes the execution substrate.
type ExecutorConfig struct {
	Timeout       time.Duration
	MaxConcurrent int
}

// Request is one tool invocation. SessionID and ProjectID are injected
// into the tool input so tools can resolve session and project state.
type Request struct {
	SessionID string
	ProjectID string
	Tool      string
	Input     map[string]any

	// Timeout overrides the executor default when positive.
	Timeout time.Duration
}

// Executor validates, bounds, and records tool invocations. Every
// execution, successful or not, is appended to the session's execution
// log and indexed for retrieval.
type Executor struct {
	registry *Registry
	sessions *sessions.Store
	index    retrieval.Index
	metrics  *Metrics
	cfg      ExecutorConfig
	sem      chan struct{}
	logger   *slog.Logger
}

// NewExecutor creates an executor. sessions, index, and metrics are each
// optional; a nil value disables that recording path.
func NewExecutor(registry *Registry, store *sessions.Store, index retrieval.Index, metrics *Metrics, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		sessions: store,
		index:    index,
		metrics:  metrics,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		logger:   logger,
	}
}

// Execute runs one tool invocation end to end: schema validation, bounded
// execution, output validation, augmentation, and recording. The returned
// error, when non-nil, is always a *Error.
func (e *Executor) Execute(ctx context.Context, req Request) (map[string]any, error) {
	start := time.Now()

	entry, ok := e.registry.lookup(req.Tool)
	if !ok {
		err := &Error{Kind: KindNotFound, Tool: req.Tool, Message: "no such tool"}
		e.record(ctx, req, nil, start, err)
		return nil, err
	}
	desc := entry.tool.Descriptor

	input := e.prepareInput(req, desc)
	if entry.inputSchema != nil {
		if verr := validate(entry.inputSchema, input); verr != nil {
			err := &Error{Kind: KindValidationInput, Tool: req.Tool, Cause: verr}
			e.record(ctx, req, nil, start, err)
			return nil, err
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	output, runErr := e.run(ctx, entry.tool, input, timeout)
	if runErr != nil {
		err := e.classify(req.Tool, runErr)
		e.record(ctx, req, nil, start, err)
		return nil, err
	}

	if entry.outputSchema != nil {
		if verr := validate(entry.outputSchema, output); verr != nil {
			err := &Error{Kind: KindValidationOutput, Tool: req.Tool, Cause: verr}
			e.record(ctx, req, nil, start, err)
			return nil, err
		}
	}

	elapsed := time.Since(start)
	augmented := make(map[string]any, len(output)+3)
	for k, v := range output {
		augmented[k] = v
	}
	augmented["execution_time"] = elapsed.Seconds()
	augmented["tool_name"] = desc.Name
	if desc.Version != "" {
		augmented["tool_version"] = desc.Version
	}

	e.record(ctx, req, augmented, start, nil)
	return augmented, nil
}

// prepareInput copies the request input, injects session context, and
// fills schema defaults for absent parameters.
func (e *Executor) prepareInput(req Request, desc models.ToolDescriptor) map[string]any {
	input := make(map[string]any, len(req.Input)+2)
	for k, v := range req.Input {
		input[k] = v
	}
	if req.SessionID != "" {
		input["session_id"] = req.SessionID
	}
	if req.ProjectID != "" {
		input["project_id"] = req.ProjectID
	}
	for name, field := range desc.InputSchema {
		if _, present := input[name]; !present && field.Default != nil {
			input[name] = field.Default
		}
	}
	return input
}

func (e *Executor) run(ctx context.Context, tool Tool, input map[string]any, timeout time.Duration) (map[string]any, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out map[string]any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		out, err := tool.Run(runCtx, input)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Tool: tool.Descriptor.Name,
				Message: fmt.Sprintf("exceeded %s", timeout)}
		}
		return nil, runCtx.Err()
	}
}

func (e *Executor) classify(tool string, err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, ErrRateLimited) {
		return &Error{Kind: KindRateLimited, Tool: tool, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Tool: tool, Cause: err}
	}
	return &Error{Kind: KindExecution, Tool: tool, Cause: err}
}

// record appends the execution to the session log and indexes a compact
// summary for retrieval.
func (e *Executor) record(ctx context.Context, req Request, output map[string]any, start time.Time, execErr *Error) {
	elapsed := time.Since(start)
	status := "success"

	exec := models.ToolExecution{
		Tool:      req.Tool,
		Input:     req.Input,
		Output:    output,
		Duration:  elapsed,
		Timestamp: start,
	}
	if execErr != nil {
		status = string(execErr.Kind)
		exec.Error = execErr.Error()
		exec.ErrorKind = string(execErr.Kind)
	}

	e.metrics.observe(req.Tool, status, elapsed)
	if execErr != nil {
		e.logger.Warn("tool execution failed",
			"tool", req.Tool, "session_id", req.SessionID,
			"kind", execErr.Kind, "duration", elapsed, "error", execErr)
	} else {
		e.logger.Info("tool executed",
			"tool", req.Tool, "session_id", req.SessionID, "duration", elapsed)
	}

	if e.sessions != nil && req.SessionID != "" {
		e.sessions.AppendToolExecution(req.SessionID, exec)
	}
	if e.index != nil && req.SessionID != "" {
		content := summarizeExecution(req.Tool, output, execErr)
		_, err := e.index.AddDocument(ctx, content, map[string]any{
			"kind":       models.DocKindToolResult,
			"tool":       req.Tool,
			"session_id": req.SessionID,
			"status":     status,
		})
		if err != nil {
			e.logger.Debug("tool result indexing failed", "tool", req.Tool, "error", err)
		}
	}
}

func summarizeExecution(tool string, output map[string]any, execErr *Error) string {
	if execErr != nil {
		return fmt.Sprintf("Tool %s failed: %s", tool, execErr.Error())
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("Tool %s succeeded", tool)
	}
	summary := string(data)
	if len(summary) > indexedResultLimit {
		summary = summary[:indexedResultLimit]
	}
	return fmt.Sprintf("Tool %s result: %s", tool, summary)
}

// validate normalizes a Go map through JSON so the schema library sees
// canonical types, then applies the compiled schema.
func validate(schema *jsonschema.Schema, value map[string]any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return err
	}
	return schema.Validate(normalized)
}
