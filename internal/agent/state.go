// Package agent runs the per-session orchestration loop: planning,
// bounded tool execution with verification and retry, event emission, and
// completion reporting.
package agent

// State is the loop's private state variable. Observers learn about
// transitions through workflow_status events, never by reading state.
type State string

const (
	StateAwaitingPrompt  State = "awaiting_prompt"
	StatePlanning        State = "planning"
	StateExecutingStep   State = "executing_step"
	StateVerifyingStep   State = "verifying_step"
	StateObservingResult State = "observing_result"
	StateDecidingNext    State = "deciding_next"
	StateAwaitingUser    State = "awaiting_user"
	StateHandlingError   State = "handling_error"
	StateFinalCheck      State = "final_check"
	StateDone            State = "done"
	StatePaused          State = "paused"
)
