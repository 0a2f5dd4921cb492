package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/retrieval"
	"github.com/clipforge/clipforge/internal/sessions"
	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/pkg/models"
)

const (
	// conversationWindow is how many trailing messages enter the context
	// package.
	conversationWindow = 10

	// retrievalBudget caps retrieved context in whitespace tokens.
	retrievalBudget = 1000

	strictFormatInstruction = "Your previous answer was not valid JSON. Answer again with ONLY a single JSON object, no prose and no code fences."
)

// Planner synthesizes initial plans from user turns and adjusts running
// plans between steps.
type Planner struct {
	llm         *llm.Client
	registry    *tools.Registry
	index       retrieval.Index
	sessions    *sessions.Store
	retryBudget int
	logger      *slog.Logger
}

// New creates a planner. index is optional.
func New(client *llm.Client, registry *tools.Registry, index retrieval.Index, store *sessions.Store, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		llm:         client,
		registry:    registry,
		index:       index,
		sessions:    store,
		retryBudget: models.DefaultRetryBudget,
		logger:      logger,
	}
}

// SetRetryBudget overrides the per-step retry allowance applied to new
// plan steps. Non-positive values are ignored.
func (p *Planner) SetRetryBudget(n int) {
	if n > 0 {
		p.retryBudget = n
	}
}

// Respond builds the context package for a user turn and returns the
// model's structured response. An unparseable answer is re-prompted once
// with a stricter format instruction, then classified as conversational.
func (p *Planner) Respond(ctx context.Context, sessionID, prompt string) (*Response, error) {
	pkg := p.contextPackage(ctx, sessionID, prompt)

	raw, err := p.llm.Generate(ctx, pkg, prompt)
	if err != nil {
		return nil, err
	}
	resp, perr := ParseResponse(raw)
	if perr == nil {
		return resp, nil
	}

	p.logger.Debug("planner response unparseable, re-prompting", "error", perr)
	retryPrompt := pkg + "\n\n" + strictFormatInstruction + "\nYour previous answer was:\n" + raw
	raw2, err := p.llm.Generate(ctx, retryPrompt, prompt)
	if err != nil {
		return nil, err
	}
	if resp, perr = ParseResponse(raw2); perr == nil {
		return resp, nil
	}
	p.logger.Warn("planner response unparseable twice, treating as conversational", "error", perr)
	return Classify(raw), nil
}

// contextPackage composes the planning prompt: user request, trailing
// conversation, project summary, and retrieved context. The tool list
// rides in the system prompt assembled by the LLM client.
func (p *Planner) contextPackage(ctx context.Context, sessionID, prompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n", prompt)

	if p.sessions != nil {
		if history := p.sessions.Conversation(sessionID, conversationWindow); len(history) > 0 {
			b.WriteString("\nRecent conversation:\n")
			for _, entry := range history {
				fmt.Fprintf(&b, "%s: %s\n", entry.Role, entry.Content)
			}
		}
		if snap, ok := p.sessions.Snapshot(sessionID); ok {
			if summary := projectSummary(snap); summary != "" {
				b.WriteString("\nProject state: ")
				b.WriteString(summary)
				b.WriteString("\n")
			}
		}
	}

	if p.index != nil {
		related, err := p.index.ContextForQuery(ctx, prompt, retrievalBudget)
		if err != nil {
			p.logger.Debug("retrieval for planning failed", "error", err)
		} else if related != "" {
			b.WriteString("\nRelated context:\n")
			b.WriteString(related)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRespond with a single JSON object.")
	return b.String()
}

func projectSummary(s *models.Session) string {
	var parts []string
	if n := len(s.Project.Scripts); n > 0 {
		parts = append(parts, fmt.Sprintf("%d script(s)", n))
	}
	if n := len(s.Project.MediaFiles); n > 0 {
		parts = append(parts, fmt.Sprintf("%d media file(s)", n))
	}
	if n := len(s.Project.Voiceovers); n > 0 {
		parts = append(parts, fmt.Sprintf("%d voiceover(s)", n))
	}
	if n := len(s.Project.Videos); n > 0 {
		parts = append(parts, fmt.Sprintf("%d video(s)", n))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ")
}

// BuildPlan turns a workflow response into an executable plan. Steps
// without explicit ids are numbered, and steps without declared
// dependencies chain onto the previous step.
func (p *Planner) BuildPlan(resp *Response) *models.Plan {
	if !resp.HasToolCalls() {
		return nil
	}
	plan := &models.Plan{
		ID:    uuid.NewString(),
		Steps: make([]*models.Step, 0, len(resp.ToolCalls)),
	}
	var prev string
	for i, tc := range resp.ToolCalls {
		id := tc.StepID
		if id == "" {
			id = fmt.Sprintf("step_%d", i+1)
		}
		step := &models.Step{
			ID:          id,
			Description: tc.Description,
			Tool:        tc.Tool,
			Args:        tc.Args,
			Status:      models.StepPending,
			RetryBudget: p.retryBudget,
		}
		if prev != "" {
			step.DependsOn = []string{prev}
		}
		plan.Steps = append(plan.Steps, step)
		prev = id
	}
	return plan
}

// preference-to-argument mappings applied by Enhance, keyed by tool family
// substring.
var preferenceArgs = map[string]map[string]string{
	"script": {
		"preferred_style":  "style",
		"preferred_length": "length",
	},
	"broll": {
		"preferred_count": "count",
	},
	"media": {
		"preferred_count": "count",
	},
	"voiceover": {
		"preferred_voice": "voice",
	},
}

// Enhance fills a step's args from session preferences. Explicit caller
// values always win.
func (p *Planner) Enhance(step *models.Step, prefs map[string]any) {
	if step == nil || len(prefs) == 0 {
		return
	}
	tool := strings.ToLower(step.Tool)
	for family, mapping := range preferenceArgs {
		if !strings.Contains(tool, family) {
			continue
		}
		for prefKey, argKey := range mapping {
			v, ok := prefs[prefKey]
			if !ok {
				continue
			}
			if step.Args == nil {
				step.Args = make(map[string]any)
			}
			if _, set := step.Args[argKey]; !set {
				step.Args[argKey] = v
			}
		}
	}
}

// Adjust consults the model after a completed step and returns additional
// steps to append. Steps whose dependencies do not reference plan ids are
// discarded.
func (p *Planner) Adjust(ctx context.Context, plan *models.Plan, completed *models.Step) []*models.Step {
	if p.llm == nil || plan == nil || completed == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Step %s (%s) just completed.\n", completed.ID, completed.Tool)
	if len(completed.Result) > 0 {
		fmt.Fprintf(&b, "Result keys: %s\n", strings.Join(resultKeys(completed.Result), ", "))
	}
	b.WriteString("Remaining plan:\n")
	remaining := 0
	for _, s := range plan.Steps {
		if s.Status == models.StepPending {
			fmt.Fprintf(&b, "- %s: %s\n", s.ID, s.Tool)
			remaining++
		}
	}
	if remaining == 0 {
		b.WriteString("(none)\n")
	}
	b.WriteString("If additional steps are needed, answer with a workflow JSON object whose tool_calls declare step_id and depend only on existing step ids. If the plan is sufficient, answer {\"response_type\": \"conversational\", \"user_message\": \"ok\"}.")

	// The empty user intent keeps the rule-based fallback conversational,
	// so an unavailable model never invents steps here.
	raw, err := p.llm.Generate(ctx, b.String(), "")
	if err != nil {
		return nil
	}
	resp, perr := ParseResponse(raw)
	if perr != nil || !resp.HasToolCalls() {
		return nil
	}

	known := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		known[s.ID] = true
	}
	var added []*models.Step
	for i, tc := range resp.ToolCalls {
		id := tc.StepID
		if id == "" {
			id = fmt.Sprintf("%s_adj%d", completed.ID, i+1)
		}
		if known[id] {
			continue
		}
		valid := true
		for _, dep := range tc.DependsOn {
			if !known[dep] {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		step := &models.Step{
			ID:          id,
			Description: tc.Description,
			Tool:        tc.Tool,
			Args:        tc.Args,
			DependsOn:   tc.DependsOn,
			Status:      models.StepPending,
			RetryBudget: p.retryBudget,
		}
		if len(step.DependsOn) == 0 {
			step.DependsOn = []string{completed.ID}
		}
		known[id] = true
		added = append(added, step)
	}
	return added
}

// AdjustArgs rewrites a failed step's args for the next retry based on the
// error kind: rate limits halve count, timeouts halve length, validation
// failures fall back to schema defaults.
func (p *Planner) AdjustArgs(step *models.Step, kind tools.ErrorKind) {
	if step == nil {
		return
	}
	switch kind {
	case tools.KindRateLimited:
		halveIntArg(step, "count")
	case tools.KindTimeout:
		halveIntArg(step, "length")
	case tools.KindValidationInput:
		p.applySchemaDefaults(step)
	}
}

func halveIntArg(step *models.Step, key string) {
	if step.Args == nil {
		return
	}
	n, ok := asInt(step.Args[key])
	if !ok || n <= 1 {
		return
	}
	step.Args[key] = n / 2
}

// applySchemaDefaults resets non-required args to their declared defaults
// and drops args the schema does not know.
func (p *Planner) applySchemaDefaults(step *models.Step) {
	if p.registry == nil {
		return
	}
	tool, ok := p.registry.Get(step.Tool)
	if !ok || len(tool.Descriptor.InputSchema) == 0 {
		return
	}
	schema := tool.Descriptor.InputSchema
	args := make(map[string]any, len(step.Args))
	for key, value := range step.Args {
		field, known := schema[key]
		if !known {
			continue
		}
		if field.Required {
			args[key] = value
			continue
		}
		if field.Default != nil {
			args[key] = field.Default
		}
	}
	step.Args = args
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func resultKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
