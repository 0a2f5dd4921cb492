package models

import "time"

// StepStatus is the lifecycle state of a plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// DefaultRetryBudget is the per-step retry allowance.
const DefaultRetryBudget = 3

// Step is one tool invocation in a plan.
//
// A step is terminal once it is completed or its retry budget is exhausted.
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description,omitempty"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Status      StepStatus     `json:"status"`
	RetryCount  int            `json:"retry_count"`
	RetryBudget int            `json:"retry_budget"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Terminal reports whether the step has finished for good.
func (s *Step) Terminal() bool {
	switch s.Status {
	case StepCompleted, StepCancelled:
		return true
	case StepFailed:
		return s.RetryCount >= s.RetryBudget
	default:
		return false
	}
}

// Plan is an ordered, dependency-aware list of steps. The agent loop may
// append steps decided mid-execution.
type Plan struct {
	ID                string        `json:"id"`
	CreatedAt         time.Time     `json:"created_at"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	Steps             []*Step       `json:"steps"`
}

// NextPending returns the first step whose dependencies are all completed
// and whose status is pending, or nil when none remains.
func (p *Plan) NextPending() *Step {
	if p == nil {
		return nil
	}
	done := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.Status == StepCompleted {
			done[s.ID] = true
		}
	}
	for _, s := range p.Steps {
		if s.Status != StepPending {
			continue
		}
		ready := true
		for _, dep := range s.DependsOn {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			return s
		}
	}
	return nil
}

// Step returns the step with the given id, or nil.
func (p *Plan) Step(id string) *Step {
	if p == nil {
		return nil
	}
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// CompletedCount returns how many steps are completed.
func (p *Plan) CompletedCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, s := range p.Steps {
		if s.Status == StepCompleted {
			n++
		}
	}
	return n
}

// Exhausted reports whether every step is terminal.
func (p *Plan) Exhausted() bool {
	if p == nil {
		return true
	}
	for _, s := range p.Steps {
		if !s.Terminal() {
			return false
		}
	}
	return true
}
