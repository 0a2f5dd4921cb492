// Package orchestrator is the thin coordinator between the transport and
// the per-session agent loops.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clipforge/clipforge/internal/agent"
	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/planner"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/retrieval"
	"github.com/clipforge/clipforge/internal/sessions"
	"github.com/clipforge/clipforge/internal/tools"
)

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Bus      *events.Bus
	Sessions *sessions.Store
	Projects *project.Store
	Planner  *planner.Planner
	Executor *tools.Executor
	Index    retrieval.Index
	Logger   *slog.Logger
}

// turn is one in-flight agent run for a session.
type turn struct {
	loop   *agent.Loop
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator routes user turns to agent loops, one active turn per
// session. A new user message cancels the session's running turn; the old
// loop drains its pending steps before the new turn begins.
type Orchestrator struct {
	deps    Deps
	loopCfg agent.Config

	mu     sync.Mutex
	active map[string]*turn
}

// New creates an orchestrator.
func New(deps Deps, loopCfg agent.Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		deps:    deps,
		loopCfg: loopCfg,
		active:  make(map[string]*turn),
	}
}

// HandleUserMessage processes one inbound user turn to completion. It
// selects or creates the session, merges the frontend snapshot when
// present, and runs an agent loop bound to the session's event stream.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, sessionID, content string, frontendState map[string]any) error {
	sess := o.deps.Sessions.GetOrCreate(sessionID)
	sessionID = sess.ID

	projectID := sess.ProjectID
	if projectID == "" {
		projectID = sessionID
		o.deps.Sessions.BindProject(sessionID, projectID)
	}
	if o.deps.Projects != nil {
		if _, err := o.deps.Projects.Ensure(projectID, ""); err != nil {
			o.deps.Logger.Warn("project setup failed", "project_id", projectID, "error", err)
		}
	}

	if len(frontendState) > 0 {
		o.deps.Sessions.SyncFrontendState(sessionID, frontendState)
	}

	o.cancelActive(sessionID)

	runCtx, cancel := context.WithCancel(ctx)
	loop := agent.New(sessionID, projectID, agent.Deps{
		Bus:      o.deps.Bus,
		Sessions: o.deps.Sessions,
		Planner:  o.deps.Planner,
		Executor: o.deps.Executor,
		Index:    o.deps.Index,
		Logger:   o.deps.Logger,
	}, o.loopCfg)

	t := &turn{loop: loop, cancel: cancel, done: make(chan struct{})}
	o.mu.Lock()
	o.active[sessionID] = t
	o.mu.Unlock()

	defer func() {
		cancel()
		close(t.done)
		o.mu.Lock()
		if o.active[sessionID] == t {
			delete(o.active, sessionID)
		}
		o.mu.Unlock()
	}()

	return loop.Run(runCtx, content)
}

// cancelActive aborts the session's running turn, if any, and waits for
// its loop to drain.
func (o *Orchestrator) cancelActive(sessionID string) {
	o.mu.Lock()
	t := o.active[sessionID]
	o.mu.Unlock()
	if t == nil {
		return
	}
	o.deps.Logger.Info("superseding active turn", "session_id", sessionID)
	t.cancel()
	t.loop.Resume()
	<-t.done
}

// Pause holds the session's running loop before its next step.
func (o *Orchestrator) Pause(sessionID string) {
	o.mu.Lock()
	t := o.active[sessionID]
	o.mu.Unlock()
	if t != nil {
		t.loop.Pause()
	}
}

// Resume releases a paused loop.
func (o *Orchestrator) Resume(sessionID string) {
	o.mu.Lock()
	t := o.active[sessionID]
	o.mu.Unlock()
	if t != nil {
		t.loop.Resume()
	}
}

// Active reports whether the session has a running turn.
func (o *Orchestrator) Active(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[sessionID] != nil
}
