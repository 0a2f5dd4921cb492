package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/planner"
	"github.com/clipforge/clipforge/internal/retrieval"
	"github.com/clipforge/clipforge/internal/sessions"
	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/pkg/models"
)

// DefaultMaxIterations bounds planning passes over one turn's plan.
const DefaultMaxIterations = 3

// Config tunes the loop.
type Config struct {
	// MaxIterations bounds how many passes the loop makes over the plan,
	// including passes extended by appended steps. Default 3.
	MaxIterations int

	// StreamMode is "char", "word", or "off".
	StreamMode string

	// CharDelay and WordDelay pace streamed assistant text. Zero selects
	// the default; a negative value disables pacing (tests).
	CharDelay time.Duration
	WordDelay time.Duration
}

// Deps carries the loop's collaborators.
type Deps struct {
	Bus      *events.Bus
	Sessions *sessions.Store
	Planner  *planner.Planner
	Executor *tools.Executor
	Index    retrieval.Index
	Logger   *slog.Logger
}

// Loop drives one session's turns. A session has at most one active Run at
// a time; the orchestrator serializes turns and cancels a running turn
// when a new user message arrives.
type Loop struct {
	sessionID string
	projectID string
	deps      Deps
	cfg       Config

	mu     sync.Mutex
	state  State
	paused bool
	resume chan struct{}
}

// New creates a loop bound to one session.
func New(sessionID, projectID string, deps Deps, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.StreamMode == "" {
		cfg.StreamMode = "word"
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Loop{
		sessionID: sessionID,
		projectID: projectID,
		deps:      deps,
		cfg:       cfg,
		state:     StateAwaitingPrompt,
		resume:    make(chan struct{}),
	}
}

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State, message string) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.publish(&models.Event{
		Type:           models.EventWorkflowStatus,
		WorkflowStatus: &models.WorkflowStatusPayload{State: string(s), Message: message},
	})
}

// Pause requests that the loop hold before its next step.
func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		l.paused = true
		l.resume = make(chan struct{})
	}
}

// Resume releases a paused loop at the same cursor.
func (l *Loop) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		l.paused = false
		close(l.resume)
	}
}

// waitIfPaused blocks while paused. Returns the context error on cancel.
func (l *Loop) waitIfPaused(ctx context.Context) error {
	for {
		l.mu.Lock()
		paused := l.paused
		resume := l.resume
		if paused {
			l.state = StatePaused
		}
		l.mu.Unlock()
		if !paused {
			return ctx.Err()
		}
		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) publish(ev *models.Event) {
	l.deps.Bus.Publish(l.sessionID, ev)
}

// Run processes one user turn to completion. Cancellation of ctx aborts
// after the in-flight tool returns; the loop then terminates in done.
func (l *Loop) Run(ctx context.Context, prompt string) error {
	l.deps.Sessions.AppendConversation(l.sessionID, models.RoleUser, prompt)
	l.indexText(ctx, prompt, models.DocKindConversation, map[string]any{"role": "user"})

	l.setState(StatePlanning, "Planning the next move")
	l.publish(&models.Event{
		Type:     models.EventThinking,
		Thinking: &models.ThinkingPayload{Text: "Thinking about your request..."},
	})

	resp, err := l.deps.Planner.Respond(ctx, l.sessionID, prompt)
	if err != nil {
		l.finishWithError(fmt.Sprintf("I couldn't finish planning: %s", summarizeErr(err)))
		return err
	}

	l.applySideEffects(resp)

	if !resp.HasToolCalls() {
		l.sendAssistantMessage(ctx, resp.UserMessage)
		l.deps.Sessions.AppendConversation(l.sessionID, models.RoleAssistant, resp.UserMessage)
		l.indexText(ctx, resp.UserMessage, models.DocKindConversation, map[string]any{"role": "assistant"})
		l.setState(StateDone, "")
		return nil
	}

	plan := l.deps.Planner.BuildPlan(resp)
	l.deps.Sessions.SetWorkflow(l.sessionID, plan)
	if resp.UserMessage != "" {
		l.sendAssistantMessage(ctx, resp.UserMessage)
	}

	err = l.runPlan(ctx, plan)
	l.finalCheck(ctx, plan)
	return err
}

// applySideEffects handles the adaptive response extras.
func (l *Loop) applySideEffects(resp *planner.Response) {
	if len(resp.Preferences) > 0 {
		l.deps.Sessions.MergePreferences(l.sessionID, resp.Preferences)
	}
	if len(resp.ContextUpdate) > 0 {
		l.deps.Sessions.UpdateContext(l.sessionID, resp.ContextUpdate)
	}
	if len(resp.ContextHints) > 0 {
		l.deps.Sessions.MergeAIContext(l.sessionID, resp.ContextHints)
	}
}

// runPlan executes the plan under the iteration budget. One iteration is a
// pass draining the currently runnable steps; appended steps extend the
// plan and consume further passes.
func (l *Loop) runPlan(ctx context.Context, plan *models.Plan) error {
	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		step := plan.NextPending()
		if step == nil {
			return nil
		}

		for step != nil {
			if err := l.waitIfPaused(ctx); err != nil {
				l.drainPending(plan)
				return err
			}
			l.runStep(ctx, plan, step)
			if ctx.Err() != nil {
				l.drainPending(plan)
				return ctx.Err()
			}
			l.deps.Sessions.SetWorkflow(l.sessionID, plan)
			step = plan.NextPending()
		}

		l.deps.Sessions.UpdateCursor(l.sessionID, models.Cursor{
			StepIndex: plan.CompletedCount(),
			Iteration: iteration + 1,
			State:     string(l.State()),
		})
	}
	return nil
}

// runStep executes one step, including its verification and retry logic.
func (l *Loop) runStep(ctx context.Context, plan *models.Plan, step *models.Step) {
	if prefs := l.preferences(); prefs != nil {
		l.deps.Planner.Enhance(step, prefs)
	}

	l.setState(StateExecutingStep, "Running "+step.Tool)
	l.publish(&models.Event{
		Type: models.EventToolCall,
		ToolCall: &models.ToolCallPayload{
			Tool:        step.Tool,
			Args:        step.Args,
			StepID:      step.ID,
			Description: step.Description,
		},
	})
	l.publish(&models.Event{
		Type:         models.EventProgress,
		StepProgress: &models.StepProgressPayload{StepID: step.ID, Status: string(models.StepRunning)},
	})
	step.Status = models.StepRunning

	result, err := l.deps.Executor.Execute(ctx, tools.Request{
		SessionID: l.sessionID,
		ProjectID: l.projectID,
		Tool:      step.Tool,
		Input:     step.Args,
	})
	l.setState(StateObservingResult, "Reviewing "+step.Tool+" result")

	if err == nil {
		step.Result = result
		l.publish(&models.Event{
			Type: models.EventToolResult,
			ToolResult: &models.ToolResultPayload{
				Tool: step.Tool, StepID: step.ID, Success: true, Result: result,
			},
		})
		l.setState(StateVerifyingStep, "Checking "+step.Tool+" output")
		if Verify(step.Tool, result) {
			l.completeStep(ctx, plan, step)
			return
		}
		err = &tools.Error{Kind: tools.KindValidationOutput, Tool: step.Tool,
			Message: "result failed verification"}
	} else {
		l.publish(&models.Event{
			Type: models.EventToolResult,
			ToolResult: &models.ToolResultPayload{
				Tool: step.Tool, StepID: step.ID, Success: false, Error: summarizeErr(err),
			},
		})
	}

	l.setState(StateHandlingError, step.Tool+" did not succeed")
	l.learnFailure(step, err)
	step.Error = summarizeErr(err)

	if step.RetryCount < step.RetryBudget {
		step.RetryCount++
		l.deps.Planner.AdjustArgs(step, tools.KindOf(err))
		step.Status = models.StepPending
		l.deps.Logger.Info("retrying step",
			"session_id", l.sessionID, "step", step.ID,
			"attempt", step.RetryCount, "kind", tools.KindOf(err))
		return
	}

	// Budget exhausted: accept the failure and move on.
	step.Status = models.StepFailed
	l.publish(&models.Event{
		Type:        models.EventAlternativeSuggestions,
		Suggestions: alternativesFor(step.Tool),
	})
}

// completeStep applies the success path: progress, GUI hints, asset
// recording, learning, and plan adjustment.
func (l *Loop) completeStep(ctx context.Context, plan *models.Plan, step *models.Step) {
	step.Status = models.StepCompleted
	l.publish(&models.Event{
		Type:         models.EventProgress,
		StepProgress: &models.StepProgressPayload{StepID: step.ID, Percent: 100, Status: string(models.StepCompleted)},
	})

	if gui := guiUpdateFor(step.Tool, step.Result); gui != nil {
		l.publish(&models.Event{Type: models.EventGUIUpdate, GUIUpdate: gui})
	}
	l.recordAsset(ctx, step)
	l.learnSuccess(step)

	completed := plan.CompletedCount()
	pct := float64(completed) / float64(len(plan.Steps)) * 100
	l.publish(&models.Event{
		Type: models.EventWorkflowProgress,
		WorkflowProgress: &models.WorkflowProgressPayload{
			Percent: pct, CompletedSteps: completed, TotalSteps: len(plan.Steps),
		},
	})

	l.setState(StateDecidingNext, "")
	if added := l.deps.Planner.Adjust(ctx, plan, step); len(added) > 0 {
		plan.Steps = append(plan.Steps, added...)
		l.deps.Logger.Info("plan extended",
			"session_id", l.sessionID, "after_step", step.ID, "added", len(added))
	}
}

// recordAsset mirrors a completed step's artifact into the session's
// project buckets and the retrieval index.
func (l *Loop) recordAsset(ctx context.Context, step *models.Step) {
	rec := models.AssetRecord{
		Tool:      step.Tool,
		Timestamp: time.Now().UTC(),
	}
	switch toolFamily(step.Tool) {
	case familyScript:
		rec.Path, _ = step.Result["script_path"].(string)
		rec.Content, _ = step.Result["script_text"].(string)
		l.deps.Sessions.AddAsset(l.sessionID, models.AssetScripts, rec)
		if rec.Content != "" {
			l.indexText(ctx, rec.Content, models.DocKindScript, map[string]any{"tool": step.Tool})
		}
	case familyMedia:
		for _, f := range mediaFiles(step.Result) {
			l.deps.Sessions.AddAsset(l.sessionID, models.AssetMediaFiles, models.AssetRecord{
				Path: f, Tool: step.Tool, Timestamp: rec.Timestamp,
			})
		}
	case familyVoiceover:
		rec.Path, _ = step.Result["audio_path"].(string)
		l.deps.Sessions.AddAsset(l.sessionID, models.AssetVoiceovers, rec)
	case familyVideo:
		rec.Path, _ = step.Result["video_path"].(string)
		l.deps.Sessions.AddAsset(l.sessionID, models.AssetVideos, rec)
	}
}

// drainPending cancels the not-yet-started steps, leaving terminal ones
// untouched.
func (l *Loop) drainPending(plan *models.Plan) {
	for _, s := range plan.Steps {
		if s.Status == models.StepPending || s.Status == models.StepRunning {
			s.Status = models.StepCancelled
		}
	}
	l.deps.Sessions.SetWorkflow(l.sessionID, plan)
}

// finalCheck reports truthfully on what the workflow produced and
// terminates the loop in done.
func (l *Loop) finalCheck(ctx context.Context, plan *models.Plan) {
	l.setState(StateFinalCheck, "")

	artifacts := collectArtifacts(plan)
	summary := completionSummary(artifacts, plan)

	l.publish(&models.Event{
		Type: models.EventWorkflowComplete,
		WorkflowComplete: &models.WorkflowCompletePayload{
			Summary:   summary,
			Artifacts: artifacts,
		},
	})
	l.sendAssistantMessage(ctx, summary)
	l.deps.Sessions.AppendConversation(l.sessionID, models.RoleAssistant, summary)
	l.indexText(ctx, summary, models.DocKindConversation, map[string]any{"role": "assistant"})
	l.setState(StateDone, "")
}

func (l *Loop) finishWithError(message string) {
	l.publish(&models.Event{
		Type:  models.EventError,
		Error: &models.ErrorPayload{Message: message},
	})
	l.deps.Sessions.AppendConversation(l.sessionID, models.RoleAssistant, message)
	l.setState(StateDone, "")
}

func (l *Loop) preferences() map[string]any {
	snap, ok := l.deps.Sessions.Snapshot(l.sessionID)
	if !ok {
		return nil
	}
	return snap.Preferences
}

func (l *Loop) indexText(ctx context.Context, content, kind string, extra map[string]any) {
	if l.deps.Index == nil || content == "" {
		return
	}
	metadata := map[string]any{"kind": kind, "session_id": l.sessionID}
	for k, v := range extra {
		metadata[k] = v
	}
	if _, err := l.deps.Index.AddDocument(ctx, content, metadata); err != nil {
		l.deps.Logger.Debug("indexing failed", "kind", kind, "error", err)
	}
}

// mediaFiles tolerates both []string (in-process tools) and []any (results
// that round-tripped through JSON).
func mediaFiles(result map[string]any) []string {
	switch v := result["media_files"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// collectArtifacts extracts the recognized artifact references from
// completed steps.
func collectArtifacts(plan *models.Plan) map[string]any {
	artifacts := make(map[string]any)
	for _, s := range plan.Steps {
		if s.Status != models.StepCompleted || s.Result == nil {
			continue
		}
		for _, key := range []string{"script_path", "audio_path", "video_path", "thumbnail_path"} {
			if v, ok := s.Result[key].(string); ok && v != "" {
				artifacts[key] = v
			}
		}
		if files := mediaFiles(s.Result); len(files) > 0 {
			artifacts["media_files"] = files
		}
		if artifacts["script_path"] == nil {
			if text, ok := s.Result["script_text"].(string); ok && text != "" {
				artifacts["script_text"] = text
			}
		}
	}
	return artifacts
}

// completionSummary composes the final assistant message from which
// artifacts exist.
func completionSummary(artifacts map[string]any, plan *models.Plan) string {
	hasScript := artifacts["script_path"] != nil || artifacts["script_text"] != nil
	hasMedia := artifacts["media_files"] != nil
	hasVoice := artifacts["audio_path"] != nil
	hasVideo := artifacts["video_path"] != nil

	switch {
	case hasVideo && hasScript && hasMedia && hasVoice:
		return "Your video is complete: script, b-roll, voiceover, and the final cut are all ready."
	case hasVideo:
		return "The final video is ready."
	case hasScript && hasMedia && hasVoice:
		return "Script, b-roll, and voiceover are ready. The final video was not assembled."
	case hasScript && !hasMedia && !hasVoice:
		return "Script ready."
	case hasScript || hasMedia || hasVoice:
		var parts []string
		if hasScript {
			parts = append(parts, "the script")
		}
		if hasMedia {
			parts = append(parts, "b-roll footage")
		}
		if hasVoice {
			parts = append(parts, "the voiceover")
		}
		return "I finished " + strings.Join(parts, ", ") + "."
	default:
		if plan.CompletedCount() == 0 {
			return "I wasn't able to produce anything this time. Want me to try a different approach?"
		}
		return "The workflow finished, but no new artifacts were produced."
	}
}

func summarizeErr(err error) string {
	if err == nil {
		return ""
	}
	var te *tools.Error
	if errors.As(err, &te) {
		reason := te.Message
		if reason == "" && te.Cause != nil {
			reason = te.Cause.Error()
		}
		return fmt.Sprintf("%s failed (%s): %s", te.Tool, te.Kind, reason)
	}
	return err.Error()
}
