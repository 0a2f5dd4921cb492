// Package config loads the clipforge service configuration from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the clipforge service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Tools     ToolsConfig     `yaml:"tools"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Projects  ProjectsConfig  `yaml:"projects"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

type LLMConfig struct {
	// Provider selects the planning model backend: "openai", "anthropic",
	// or "none" (rule-based fallback only).
	Provider string `yaml:"provider"`

	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`

	// RequestTimeout bounds a single completion attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxAttempts bounds retries on rate-limit and transient errors.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the initial retry delay, doubled per attempt.
	BackoffBase time.Duration `yaml:"backoff_base"`
}

type AgentConfig struct {
	// MaxIterations bounds agent iterations per user turn.
	MaxIterations int `yaml:"max_iterations"`

	// RetryBudget is the default per-step retry allowance.
	RetryBudget int `yaml:"retry_budget"`

	// StreamMode selects assistant text streaming: "word", "char", or
	// "off" (single whole message).
	StreamMode string `yaml:"stream_mode"`
}

type ToolsConfig struct {
	// DefaultTimeout bounds a single tool invocation.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

type RetrievalConfig struct {
	// Mode selects the index backend: "vector" (chromem) or "keyword".
	Mode string `yaml:"mode"`

	// MaxContextTokens is the whitespace-token budget for planner context.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// PersistPath, when set, makes the vector store durable on disk.
	PersistPath string `yaml:"persist_path"`
}

type ProjectsConfig struct {
	// Root is the directory under which project directories live.
	Root string `yaml:"root"`
}

type SessionsConfig struct {
	// EventBuffer is the per-session event ring size.
	EventBuffer int `yaml:"event_buffer"`

	// IdleTimeout makes inactive sessions eligible for eviction.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8700,
			MetricsPath: "/metrics",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			RequestTimeout: 60 * time.Second,
			MaxAttempts:    3,
			BackoffBase:    2 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations: 3,
			RetryBudget:   3,
			StreamMode:    "word",
		},
		Tools: ToolsConfig{
			DefaultTimeout: 300 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Mode:             "keyword",
			MaxContextTokens: 1000,
		},
		Projects: ProjectsConfig{
			Root: "./projects",
		},
		Sessions: SessionsConfig{
			EventBuffer: 100,
			IdleTimeout: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path, falling back to defaults for any
// field left unset. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and provider selection from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.Provider == "anthropic" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("CLIPFORGE_PROJECTS_ROOT"); v != "" {
		c.Projects.Root = v
	}
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic", "none":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Retrieval.Mode {
	case "vector", "keyword":
	default:
		return fmt.Errorf("unknown retrieval mode %q", c.Retrieval.Mode)
	}
	switch c.Agent.StreamMode {
	case "word", "char", "off":
	default:
		return fmt.Errorf("unknown stream mode %q", c.Agent.StreamMode)
	}
	if c.Sessions.EventBuffer <= 0 {
		c.Sessions.EventBuffer = 100
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 3
	}
	return nil
}
