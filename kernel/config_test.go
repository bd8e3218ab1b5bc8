package kernel_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/sandbox"
)

func TestDefaultConfig(t *testing.T) {
	cfg := kernel.DefaultConfig()

	if cfg.MaxIterations != 10 {
		t.Errorf("got MaxIterations %d, want 10", cfg.MaxIterations)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("got MaxRetries %d, want 3", cfg.MaxRetries)
	}
	if cfg.Protocol != protocol.Tools {
		t.Errorf("got Protocol %q, want %q", cfg.Protocol, protocol.Tools)
	}
	if cfg.Sandbox.Kind != sandbox.KindInProcess {
		t.Errorf("got Sandbox.Kind %q, want %q", cfg.Sandbox.Kind, sandbox.KindInProcess)
	}
	if cfg.SystemPrompt != kernel.DefaultSystemPrompt {
		t.Error("expected the default system prompt")
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := kernel.DefaultConfig()

	source := &kernel.Config{
		MaxIterations: 20,
		MaxRetries:    5,
		Protocol:      protocol.Chat,
		SystemPrompt:  "merged prompt",
		Stream:        true,
	}

	cfg.Merge(source)

	if cfg.MaxIterations != 20 {
		t.Errorf("got MaxIterations %d, want 20", cfg.MaxIterations)
	}

	if cfg.SystemPrompt != "merged prompt" {
		t.Errorf("got SystemPrompt %q, want %q", cfg.SystemPrompt, "merged prompt")
	}
	if cfg.MaxRetries != 5 || cfg.Protocol != protocol.Chat || !cfg.Stream {
		t.Errorf("got %d/%q/%v, want 5/chat/true", cfg.MaxRetries, cfg.Protocol, cfg.Stream)
	}
}

func TestConfig_Merge_ZeroValuesPreserveDefaults(t *testing.T) {
	cfg := kernel.DefaultConfig()
	original := cfg.MaxIterations

	source := &kernel.Config{} // All zero values

	cfg.Merge(source)

	if cfg.MaxIterations != original {
		t.Errorf("got MaxIterations %d, want %d (preserved default)", cfg.MaxIterations, original)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	content := `{
		"max_iterations": 25,
		"system_prompt": "loaded prompt",
		"memory": {
			"path": "/tmp/mem"
		}
	}`

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := kernel.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MaxIterations != 25 {
		t.Errorf("got MaxIterations %d, want 25", cfg.MaxIterations)
	}

	if cfg.SystemPrompt != "loaded prompt" {
		t.Errorf("got SystemPrompt %q, want %q", cfg.SystemPrompt, "loaded prompt")
	}

	if cfg.Memory.Path != "/tmp/mem" {
		t.Errorf("got Memory.Path %q, want %q", cfg.Memory.Path, "/tmp/mem")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := kernel.LoadConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.json")

	if err := os.WriteFile(configPath, []byte("{invalid}"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := kernel.LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "autods.toml")

	content := `
max_retries = 2
protocol = "chat"
syntax_check = true

[agent.provider]
name = "deepinfra"
api_key_env = "DEEPINFRA_API_KEY"

[agent.model]
name = "meta-llama/Meta-Llama-3.1-70B-Instruct"

[sandbox]
kind = "worker"
timeout = "45s"

[session]
backend = "sqlite"
path = "/tmp/sessions.db"
`

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := kernel.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MaxRetries != 2 {
		t.Errorf("got MaxRetries %d, want 2", cfg.MaxRetries)
	}
	if cfg.MaxIterations != 10 {
		t.Errorf("got MaxIterations %d, want default 10", cfg.MaxIterations)
	}
	if cfg.Protocol != protocol.Chat || !cfg.SyntaxCheck {
		t.Errorf("got protocol %q syntax_check %v", cfg.Protocol, cfg.SyntaxCheck)
	}
	if cfg.Agent.Provider.Name != "deepinfra" {
		t.Errorf("got provider %q, want deepinfra", cfg.Agent.Provider.Name)
	}
	if cfg.Agent.Model.Name != "meta-llama/Meta-Llama-3.1-70B-Instruct" {
		t.Errorf("got model %q", cfg.Agent.Model.Name)
	}
	if cfg.Agent.Model.Options["temperature"] != 0.1 {
		t.Errorf("default temperature should survive the merge, got %v", cfg.Agent.Model.Options["temperature"])
	}
	if cfg.Sandbox.Kind != sandbox.KindWorker || cfg.Sandbox.Timeout.Std() != 45*time.Second {
		t.Errorf("got sandbox %q %v", cfg.Sandbox.Kind, cfg.Sandbox.Timeout.Std())
	}
	if cfg.Session.Backend != "sqlite" || cfg.Session.Path != "/tmp/sessions.db" {
		t.Errorf("got session %+v", cfg.Session)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*kernel.Config)
		wantErr bool
	}{
		{"defaults", func(*kernel.Config) {}, false},
		{"chat protocol", func(c *kernel.Config) { c.Protocol = protocol.Chat }, false},
		{"unknown protocol", func(c *kernel.Config) { c.Protocol = "vision" }, true},
		{"unknown sandbox", func(c *kernel.Config) { c.Sandbox.Kind = "docker" }, true},
		{"negative retries", func(c *kernel.Config) { c.MaxRetries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := kernel.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("got error %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, kernel.ErrInvalidConfig) {
				t.Errorf("got error %v, want ErrInvalidConfig", err)
			}
		})
	}
}
