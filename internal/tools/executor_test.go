package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/sessions"
	"github.com/clipforge/clipforge/pkg/models"
)

func newTestExecutor(t *testing.T, store *sessions.Store, tools ...Tool) *Executor {
	t.Helper()
	r := NewRegistry(nil, nil)
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			t.Fatalf("Register %s: %v", tool.Descriptor.Name, err)
		}
	}
	return NewExecutor(r, store, nil, nil, ExecutorConfig{}, nil)
}

func TestExecutor_NotFound(t *testing.T) {
	e := newTestExecutor(t, nil)
	_, err := e.Execute(context.Background(), Request{Tool: "missing"})
	if KindOf(err) != KindNotFound {
		t.Errorf("kind = %v, want not_found", KindOf(err))
	}
	if Retryable(err) {
		t.Error("not_found reported as retryable")
	}
}

func TestExecutor_InputValidation(t *testing.T) {
	e := newTestExecutor(t, nil, Tool{
		Descriptor: models.ToolDescriptor{
			Name: "script_writer",
			InputSchema: models.Schema{
				"topic": {Type: models.FieldString, Required: true},
			},
		},
		Run: noopRunner,
	})

	_, err := e.Execute(context.Background(), Request{Tool: "script_writer"})
	if KindOf(err) != KindValidationInput {
		t.Errorf("kind = %v, want validation_input", KindOf(err))
	}
	if Retryable(err) {
		t.Error("validation failure reported as retryable")
	}
}

func TestExecutor_OutputValidation(t *testing.T) {
	e := newTestExecutor(t, nil, Tool{
		Descriptor: models.ToolDescriptor{
			Name: "script_writer",
			OutputSchema: models.Schema{
				"script_text": {Type: models.FieldString, Required: true},
			},
		},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"wrong_key": "x"}, nil
		},
	})

	_, err := e.Execute(context.Background(), Request{Tool: "script_writer"})
	if KindOf(err) != KindValidationOutput {
		t.Errorf("kind = %v, want validation_output", KindOf(err))
	}
}

func TestExecutor_InjectsContextAndDefaults(t *testing.T) {
	var seen map[string]any
	e := newTestExecutor(t, nil, Tool{
		Descriptor: models.ToolDescriptor{
			Name: "broll_finder",
			InputSchema: models.Schema{
				"query": {Type: models.FieldString, Required: true},
				"count": {Type: models.FieldInteger, Default: 5},
			},
		},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			seen = input
			return map[string]any{}, nil
		},
	})

	_, err := e.Execute(context.Background(), Request{
		SessionID: "s1",
		ProjectID: "p1",
		Tool:      "broll_finder",
		Input:     map[string]any{"query": "city"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen["session_id"] != "s1" || seen["project_id"] != "p1" {
		t.Errorf("session context not injected: %v", seen)
	}
	if seen["count"] != 5 {
		t.Errorf("count = %v, want schema default 5", seen["count"])
	}
}

func TestExecutor_AugmentsOutput(t *testing.T) {
	e := newTestExecutor(t, nil, Tool{
		Descriptor: models.ToolDescriptor{Name: "script_writer", Version: "1.2.0"},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"script_text": "INT. FORUM - DAY"}, nil
		},
	})

	out, err := e.Execute(context.Background(), Request{Tool: "script_writer"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["script_text"] != "INT. FORUM - DAY" {
		t.Errorf("tool output lost: %v", out)
	}
	if out["tool_name"] != "script_writer" || out["tool_version"] != "1.2.0" {
		t.Errorf("augmentation missing: %v", out)
	}
	if _, ok := out["execution_time"].(float64); !ok {
		t.Errorf("execution_time = %v", out["execution_time"])
	}
}

func TestExecutor_Timeout(t *testing.T) {
	e := newTestExecutor(t, nil, Tool{
		Descriptor: models.ToolDescriptor{Name: "slow"},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			select {
			case <-time.After(5 * time.Second):
				return map[string]any{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	start := time.Now()
	_, err := e.Execute(context.Background(), Request{Tool: "slow", Timeout: 20 * time.Millisecond})
	if KindOf(err) != KindTimeout {
		t.Errorf("kind = %v, want timeout", KindOf(err))
	}
	if !Retryable(err) {
		t.Error("timeout not retryable")
	}
	if time.Since(start) > time.Second {
		t.Error("executor waited past the timeout")
	}
}

func TestExecutor_RateLimitClassification(t *testing.T) {
	e := newTestExecutor(t, nil, Tool{
		Descriptor: models.ToolDescriptor{Name: "broll_finder"},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("upstream said no: %w", ErrRateLimited)
		},
	})

	_, err := e.Execute(context.Background(), Request{Tool: "broll_finder"})
	if KindOf(err) != KindRateLimited {
		t.Errorf("kind = %v, want rate_limited", KindOf(err))
	}
	if !Retryable(err) {
		t.Error("rate limit not retryable")
	}
}

func TestExecutor_PanicBecomesExecutionError(t *testing.T) {
	e := newTestExecutor(t, nil, Tool{
		Descriptor: models.ToolDescriptor{Name: "bad"},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			panic("boom")
		},
	})

	_, err := e.Execute(context.Background(), Request{Tool: "bad"})
	if KindOf(err) != KindExecution {
		t.Errorf("kind = %v, want execution", KindOf(err))
	}
}

func TestExecutor_RecordsEveryOutcome(t *testing.T) {
	store := sessions.NewStore(nil)
	store.GetOrCreate("s1")

	e := newTestExecutor(t, store,
		Tool{
			Descriptor: models.ToolDescriptor{Name: "good"},
			Run:        noopRunner,
		},
		Tool{
			Descriptor: models.ToolDescriptor{Name: "bad"},
			Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
				return nil, errors.New("deliberate failure")
			},
		},
	)

	ctx := context.Background()
	if _, err := e.Execute(ctx, Request{SessionID: "s1", Tool: "good"}); err != nil {
		t.Fatalf("Execute good: %v", err)
	}
	if _, err := e.Execute(ctx, Request{SessionID: "s1", Tool: "bad"}); err == nil {
		t.Fatal("Execute bad succeeded")
	}

	snap, _ := store.Snapshot("s1")
	if len(snap.ToolExecutions) != 2 {
		t.Fatalf("executions = %d, want 2", len(snap.ToolExecutions))
	}
	if snap.ToolExecutions[0].Error != "" {
		t.Errorf("success recorded with error: %q", snap.ToolExecutions[0].Error)
	}
	failed := snap.ToolExecutions[1]
	if failed.ErrorKind != string(KindExecution) {
		t.Errorf("error_kind = %q, want execution", failed.ErrorKind)
	}
	if failed.Error == "" {
		t.Error("failure recorded without error text")
	}
}

func TestExecutor_ContextCancellation(t *testing.T) {
	e := newTestExecutor(t, nil, Tool{
		Descriptor: models.ToolDescriptor{Name: "slow"},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, Request{Tool: "slow"})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if KindOf(err) != KindExecution {
		t.Errorf("kind = %v, want execution for caller cancellation", KindOf(err))
	}
}
