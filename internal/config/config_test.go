package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8700 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Agent.StreamMode != "word" {
		t.Errorf("stream_mode = %q", cfg.Agent.StreamMode)
	}
	if cfg.Retrieval.Mode != "keyword" {
		t.Errorf("retrieval mode = %q", cfg.Retrieval.Mode)
	}
	if cfg.Sessions.EventBuffer != 100 {
		t.Errorf("event_buffer = %d", cfg.Sessions.EventBuffer)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clipforge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
llm:
  provider: none
agent:
  stream_mode: "off"
sessions:
  idle_timeout: 5m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want override", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "none" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.Agent.StreamMode != "off" {
		t.Errorf("stream_mode = %q", cfg.Agent.StreamMode)
	}
	if cfg.Sessions.IdleTimeout != 5*time.Minute {
		t.Errorf("idle_timeout = %v", cfg.Sessions.IdleTimeout)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown provider", "llm:\n  provider: cohere\n"},
		{"unknown retrieval mode", "retrieval:\n  mode: graph\n"},
		{"unknown stream mode", "agent:\n  stream_mode: sentence\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestApplyEnv_ProviderKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want env value", cfg.LLM.APIKey)
	}
}

func TestApplyEnv_KeyIgnoredForOtherProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := writeConfig(t, "llm:\n  provider: anthropic\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("api_key = %q, want empty for mismatched provider", cfg.LLM.APIKey)
	}
}

func TestApplyEnv_ProjectsRoot(t *testing.T) {
	t.Setenv("CLIPFORGE_PROJECTS_ROOT", "/var/clipforge")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Projects.Root != "/var/clipforge" {
		t.Errorf("projects root = %q", cfg.Projects.Root)
	}
}
