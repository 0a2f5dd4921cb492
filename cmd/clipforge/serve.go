package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clipforge/clipforge/internal/agent"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/gateway"
	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/orchestrator"
	"github.com/clipforge/clipforge/internal/planner"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/retrieval"
	"github.com/clipforge/clipforge/internal/sessions"
	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/internal/tools/builtin"
)

// runServe wires the core and serves until interrupted.
func runServe(parent context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index, err := newIndex(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := index.Close(); cerr != nil {
			logger.Warn("closing retrieval index", "error", cerr)
		}
	}()

	store := sessions.NewStore(logger)
	projects := project.NewStore(cfg.Projects.Root)
	bus := events.NewBus(cfg.Sessions.EventBuffer, logger)

	registry := tools.NewRegistry(index, logger)
	if err := builtin.RegisterAll(registry, builtin.Deps{Projects: projects}); err != nil {
		return err
	}

	metrics := tools.NewMetrics(prometheus.DefaultRegisterer)
	executor := tools.NewExecutor(registry, store, index, metrics, tools.ExecutorConfig{
		Timeout: cfg.Tools.DefaultTimeout,
	}, logger)

	client := llm.NewClient(newProvider(cfg), registry, llm.ClientConfig{
		MaxAttempts:    cfg.LLM.MaxAttempts,
		BackoffBase:    cfg.LLM.BackoffBase,
		RequestTimeout: cfg.LLM.RequestTimeout,
	}, logger)

	plnr := planner.New(client, registry, index, store, logger)
	plnr.SetRetryBudget(cfg.Agent.RetryBudget)

	orch := orchestrator.New(orchestrator.Deps{
		Bus:      bus,
		Sessions: store,
		Projects: projects,
		Planner:  plnr,
		Executor: executor,
		Index:    index,
		Logger:   logger,
	}, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		StreamMode:    cfg.Agent.StreamMode,
	})

	server := gateway.NewServer(cfg, orch, bus, store, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func newIndex(cfg *config.Config, logger *slog.Logger) (retrieval.Index, error) {
	if cfg.Retrieval.Mode == "vector" {
		idx, err := retrieval.NewVectorIndex(retrieval.VectorIndexConfig{
			PersistPath: cfg.Retrieval.PersistPath,
			Logger:      logger,
		})
		if err == nil {
			return idx, nil
		}
		logger.Warn("vector index unavailable, using keyword index", "error", err)
	}
	return retrieval.NewKeywordIndex(), nil
}

// newProvider selects the planning model backend. "none" leaves the client
// on the rule-based generator.
func newProvider(cfg *config.Config) llm.Provider {
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.APIKey == "" {
			return nil
		}
		return llm.NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.Model)
	case "anthropic":
		if cfg.LLM.APIKey == "" {
			return nil
		}
		return llm.NewAnthropicProvider(cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		return nil
	}
}
