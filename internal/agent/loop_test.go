package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/planner"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/sessions"
	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/internal/tools/builtin"
	"github.com/clipforge/clipforge/pkg/models"
)

// harness wires a loop against the offline stack: no LLM credentials, the
// builtin tools, and a throwaway project directory.
type harness struct {
	bus      *events.Bus
	store    *sessions.Store
	registry *tools.Registry
	loop     *Loop
}

func newHarness(t *testing.T, registry *tools.Registry) *harness {
	t.Helper()
	bus := events.NewBus(0, nil)
	store := sessions.NewStore(nil)
	store.GetOrCreate("s1")

	if registry == nil {
		registry = tools.NewRegistry(nil, nil)
		deps := builtin.Deps{Projects: project.NewStore(t.TempDir())}
		if err := builtin.RegisterAll(registry, deps); err != nil {
			t.Fatalf("RegisterAll: %v", err)
		}
	}

	exec := tools.NewExecutor(registry, store, nil, nil, tools.ExecutorConfig{}, nil)
	client := llm.NewClient(nil, registry, llm.ClientConfig{}, nil)
	pl := planner.New(client, registry, nil, store, nil)

	loop := New("s1", "s1", Deps{
		Bus:      bus,
		Sessions: store,
		Planner:  pl,
		Executor: exec,
	}, Config{StreamMode: "off"})

	return &harness{bus: bus, store: store, registry: registry, loop: loop}
}

func (h *harness) events() []*models.Event {
	return h.bus.Buffered("s1")
}

func (h *harness) eventsOfType(et models.EventType) []*models.Event {
	var out []*models.Event
	for _, ev := range h.events() {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}

func TestLoop_Greeting(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.loop.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.loop.State() != StateDone {
		t.Errorf("state = %v, want done", h.loop.State())
	}

	if calls := h.eventsOfType(models.EventToolCall); len(calls) != 0 {
		t.Errorf("greeting triggered %d tool calls", len(calls))
	}
	msgs := h.eventsOfType(models.EventAIMessage)
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].AIMessage.Content, "Hello") {
		t.Errorf("ai_message = %+v, want a greeting", msgs)
	}

	history := h.store.Conversation("s1", 0)
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Errorf("conversation = %+v, want user then assistant", history)
	}
}

func TestLoop_ScriptOnlyWorkflow(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.loop.Run(context.Background(), "write a script about the Romans"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := h.eventsOfType(models.EventToolCall)
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(calls))
	}
	if calls[0].ToolCall.Tool != "script_writer" {
		t.Errorf("tool = %q, want script_writer", calls[0].ToolCall.Tool)
	}
	if calls[0].ToolCall.Args["topic"] != "The Romans" {
		t.Errorf("topic = %v, want %q", calls[0].ToolCall.Args["topic"], "The Romans")
	}

	results := h.eventsOfType(models.EventToolResult)
	if len(results) != 1 || !results[0].ToolResult.Success {
		t.Errorf("tool_result = %+v, want one success", results)
	}

	guis := h.eventsOfType(models.EventGUIUpdate)
	if len(guis) != 1 || guis[0].GUIUpdate.UpdateType != models.GUIScriptCreated {
		t.Errorf("gui_update = %+v, want script_created", guis)
	}

	completes := h.eventsOfType(models.EventWorkflowComplete)
	if len(completes) != 1 {
		t.Fatalf("workflow_complete = %d events, want 1", len(completes))
	}
	if completes[0].WorkflowComplete.Summary != "Script ready." {
		t.Errorf("summary = %q", completes[0].WorkflowComplete.Summary)
	}

	snap, _ := h.store.Snapshot("s1")
	if len(snap.Project.Scripts) != 1 {
		t.Errorf("session scripts = %d, want 1", len(snap.Project.Scripts))
	}
}

func TestLoop_VideoPipeline(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.loop.Run(context.Background(), "make me a video on Messi"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := h.eventsOfType(models.EventToolCall)
	wantOrder := []string{"script_writer", "broll_finder", "voiceover_generator", "video_processor"}
	if len(calls) != len(wantOrder) {
		t.Fatalf("tool calls = %d, want %d", len(calls), len(wantOrder))
	}
	for i, want := range wantOrder {
		if calls[i].ToolCall.Tool != want {
			t.Errorf("tool call %d = %q, want %q", i, calls[i].ToolCall.Tool, want)
		}
	}

	completes := h.eventsOfType(models.EventWorkflowComplete)
	if len(completes) != 1 {
		t.Fatalf("workflow_complete = %d events, want 1", len(completes))
	}
	summary := completes[0].WorkflowComplete.Summary
	if !strings.HasPrefix(summary, "Your video is complete") {
		t.Errorf("summary = %q", summary)
	}
	videoPath, _ := completes[0].WorkflowComplete.Artifacts["video_path"].(string)
	if videoPath == "" {
		t.Fatal("no video_path artifact")
	}
	if _, err := os.Stat(videoPath); err != nil {
		t.Errorf("video artifact missing on disk: %v", err)
	}

	snap, _ := h.store.Snapshot("s1")
	if snap.Workflow == nil {
		t.Fatal("workflow not recorded")
	}
	for _, s := range snap.Workflow.Steps {
		if s.Status != models.StepCompleted {
			t.Errorf("step %s status = %v, want completed", s.ID, s.Status)
		}
	}
	if len(snap.Project.Videos) != 1 {
		t.Errorf("session videos = %d, want 1", len(snap.Project.Videos))
	}
}

// flakyBroll fails with a rate limit on the first call, then succeeds with a
// real file so verification passes.
func flakyBroll(t *testing.T, failures int, seen *[]map[string]any) tools.Tool {
	t.Helper()
	dir := t.TempDir()
	calls := 0
	return tools.Tool{
		Descriptor: models.ToolDescriptor{
			Name:        "broll_finder",
			Description: "Finds b-roll footage.",
		},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			*seen = append(*seen, input)
			calls++
			if calls <= failures {
				return nil, fmt.Errorf("upstream 429: %w", tools.ErrRateLimited)
			}
			path := filepath.Join(dir, fmt.Sprintf("clip%d.mp4", calls))
			if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
				return nil, err
			}
			return map[string]any{"media_files": []string{path}, "count": 1}, nil
		},
	}
}

func TestLoop_RateLimitRetryHalvesCount(t *testing.T) {
	var seen []map[string]any
	registry := tools.NewRegistry(nil, nil)
	if err := registry.Register(flakyBroll(t, 1, &seen)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h := newHarness(t, registry)

	if err := h.loop.Run(context.Background(), "find b-roll of city streets"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("tool invocations = %d, want 2", len(seen))
	}
	if got := asCount(seen[0]["count"]); got != 5 {
		t.Errorf("first attempt count = %d, want 5", got)
	}
	if got := asCount(seen[1]["count"]); got != 2 {
		t.Errorf("retry count = %d, want halved to 2", got)
	}

	snap, _ := h.store.Snapshot("s1")
	if snap.Workflow == nil || len(snap.Workflow.Steps) != 1 {
		t.Fatalf("workflow = %+v", snap.Workflow)
	}
	step := snap.Workflow.Steps[0]
	if step.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", step.RetryCount)
	}
	if step.Status != models.StepCompleted {
		t.Errorf("status = %v, want completed", step.Status)
	}

	results := h.eventsOfType(models.EventToolResult)
	if len(results) != 2 || results[0].ToolResult.Success || !results[1].ToolResult.Success {
		t.Errorf("tool_result sequence = %+v, want failure then success", results)
	}
}

func TestLoop_RetryExhaustion(t *testing.T) {
	var seen []map[string]any
	registry := tools.NewRegistry(nil, nil)
	if err := registry.Register(flakyBroll(t, 100, &seen)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h := newHarness(t, registry)

	if err := h.loop.Run(context.Background(), "find b-roll of city streets"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Initial attempt plus the full retry budget.
	if len(seen) != models.DefaultRetryBudget+1 {
		t.Errorf("tool invocations = %d, want %d", len(seen), models.DefaultRetryBudget+1)
	}

	snap, _ := h.store.Snapshot("s1")
	if snap.Workflow.Steps[0].Status != models.StepFailed {
		t.Errorf("status = %v, want failed", snap.Workflow.Steps[0].Status)
	}

	suggestions := h.eventsOfType(models.EventAlternativeSuggestions)
	if len(suggestions) != 1 {
		t.Fatalf("alternative_suggestions = %d events, want 1", len(suggestions))
	}
	if len(suggestions[0].Suggestions.Alternatives) == 0 {
		t.Error("no alternatives offered")
	}

	completes := h.eventsOfType(models.EventWorkflowComplete)
	if len(completes) != 1 {
		t.Fatalf("workflow_complete = %d events, want 1", len(completes))
	}
	summary := completes[0].WorkflowComplete.Summary
	if !strings.Contains(summary, "wasn't able") {
		t.Errorf("summary = %q, want an honest failure report", summary)
	}
}

func TestLoop_StreamingWordMode(t *testing.T) {
	h := newHarness(t, nil)
	h.loop.cfg.StreamMode = "word"
	h.loop.cfg.WordDelay = -1 // no pacing in tests

	h.loop.sendAssistantMessage(context.Background(), "Script ready. Take a look!")

	msgs := h.eventsOfType(models.EventAIMessage)
	if len(msgs) < 3 {
		t.Fatalf("events = %d, want partials plus terminal", len(msgs))
	}

	terminal := msgs[len(msgs)-1].AIMessage
	if terminal.IsPartial {
		t.Error("terminal event is partial")
	}
	if msgs[len(msgs)-1].Progress != nil {
		t.Errorf("terminal envelope progress = %v, want unset", *msgs[len(msgs)-1].Progress)
	}
	if terminal.Content != "Script ready. Take a look!" {
		t.Errorf("terminal content = %q", terminal.Content)
	}

	sharedID := terminal.MessageID
	prevLen := 0
	prevProgress := 0.0
	for i, ev := range msgs[:len(msgs)-1] {
		p := ev.AIMessage
		if !p.IsPartial {
			t.Errorf("chunk %d not marked partial", i)
		}
		if p.MessageID != sharedID {
			t.Errorf("chunk %d message id = %q, want %q", i, p.MessageID, sharedID)
		}
		if len(p.Content) <= prevLen {
			t.Errorf("chunk %d content did not grow: %q", i, p.Content)
		}
		if !strings.HasPrefix(terminal.Content, p.Content) {
			t.Errorf("chunk %d is not a prefix of the full text: %q", i, p.Content)
		}
		if p.Progress < prevProgress {
			t.Errorf("chunk %d progress regressed: %v < %v", i, p.Progress, prevProgress)
		}
		if ev.Progress == nil {
			t.Errorf("chunk %d envelope progress unset", i)
		} else if *ev.Progress != p.Progress {
			t.Errorf("chunk %d envelope progress = %v, payload %v", i, *ev.Progress, p.Progress)
		}
		prevLen = len(p.Content)
		prevProgress = p.Progress
	}
}

func TestLoop_WorkflowStatusTransitions(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.loop.Run(context.Background(), "write a script about the Romans"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var states []string
	for _, ev := range h.eventsOfType(models.EventWorkflowStatus) {
		states = append(states, ev.WorkflowStatus.State)
	}
	for _, want := range []State{
		StatePlanning, StateExecutingStep, StateObservingResult,
		StateVerifyingStep, StateDecidingNext, StateFinalCheck, StateDone,
	} {
		found := false
		for _, s := range states {
			if s == string(want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("state %q never reported; sequence = %v", want, states)
		}
	}
}

func TestLoop_LearnsPreferencesFromSuccess(t *testing.T) {
	h := newHarness(t, nil)

	h.loop.learnSuccess(&models.Step{
		Tool: "script_writer",
		Args: map[string]any{"style": "noir", "length": 120},
	})

	snap, _ := h.store.Snapshot("s1")
	if snap.Preferences["preferred_style"] != "noir" {
		t.Errorf("preferred_style = %v, want noir", snap.Preferences["preferred_style"])
	}
	if snap.Preferences["preferred_length"] != 120 {
		t.Errorf("preferred_length = %v, want 120", snap.Preferences["preferred_length"])
	}
}

func TestLoop_LearnsFailurePatterns(t *testing.T) {
	h := newHarness(t, nil)

	step := &models.Step{Tool: "broll_finder"}
	h.loop.learnFailure(step, &tools.Error{Kind: tools.KindRateLimited, Tool: step.Tool})
	h.loop.learnFailure(step, &tools.Error{Kind: tools.KindTimeout, Tool: step.Tool})

	snap, _ := h.store.Snapshot("s1")
	patterns, ok := snap.Preferences["failure_patterns"].([]any)
	if !ok || len(patterns) != 2 {
		t.Fatalf("failure_patterns = %v, want 2 records", snap.Preferences["failure_patterns"])
	}
	first, _ := patterns[0].(map[string]any)
	if first["tool"] != "broll_finder" || first["kind"] != "rate_limited" {
		t.Errorf("record = %v", first)
	}
}

func TestVerify(t *testing.T) {
	cases := []struct {
		name   string
		tool   string
		result map[string]any
		want   bool
	}{
		{"script ok", "script_writer", map[string]any{"script_text": "INT."}, true},
		{"script empty", "script_writer", map[string]any{"script_text": "   "}, false},
		{"voiceover ok", "voiceover_generator", map[string]any{"audio_path": "/x.wav"}, true},
		{"voiceover missing", "voiceover_generator", map[string]any{"other": 1}, false},
		{"video ok", "video_processor", map[string]any{"video_path": "/x.mp4"}, true},
		{"unknown tool non-empty", "color_grader", map[string]any{"ok": true}, true},
		{"empty result", "color_grader", map[string]any{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Verify(tc.tool, tc.result); got != tc.want {
				t.Errorf("Verify(%s) = %v, want %v", tc.tool, got, tc.want)
			}
		})
	}
}

func TestVerify_MediaRequiresRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !Verify("broll_finder", map[string]any{"media_files": []string{path}}) {
		t.Error("existing file rejected")
	}
	if Verify("broll_finder", map[string]any{"media_files": []string{"/nonexistent/clip.mp4"}}) {
		t.Error("missing file accepted")
	}
}

func asCount(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return -1
	}
}
