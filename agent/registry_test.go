package agent_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/autods/agent"
	"github.com/tailored-agentic-units/autods/agent/providers"
	"github.com/tailored-agentic-units/autods/core/config"
	"github.com/tailored-agentic-units/autods/core/protocol"
)

func ollamaConfig(modelName string, caps ...string) config.AgentConfig {
	capabilities := make(map[string]map[string]any, len(caps))
	for _, c := range caps {
		capabilities[c] = map[string]any{}
	}

	return config.AgentConfig{
		Provider: &config.ProviderConfig{
			Name:    "ollama",
			BaseURL: "http://localhost:11434",
		},
		Model: &config.ModelConfig{
			Name:         modelName,
			Capabilities: capabilities,
		},
	}
}

func TestRegistry_GetBuildsOnce(t *testing.T) {
	r := agent.NewRegistry()
	if err := r.Register("coder", ollamaConfig("qwen2.5-coder:7b", "tools")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	a, err := r.Get("coder")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a.Model() != "qwen2.5-coder:7b" {
		t.Errorf("got model %q, want qwen2.5-coder:7b", a.Model())
	}

	again, _ := r.Get("coder")
	if again != a {
		t.Error("second Get built a new agent")
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := agent.NewRegistry()
	r.Register("coder", ollamaConfig("m", "tools"))

	tests := []struct {
		name    string
		agent   string
		wantErr error
	}{
		{"empty name", "", agent.ErrEmptyAgentName},
		{"duplicate", "coder", agent.ErrAgentExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.agent, ollamaConfig("m"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := r.Get("missing"); !errors.Is(err, agent.ErrAgentNotFound) {
		t.Errorf("Get(missing) = %v, want ErrAgentNotFound", err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := agent.NewRegistry()
	r.Register("both", ollamaConfig("qwen3:8b", "chat", "tools"))
	r.Register("freeform", ollamaConfig("llama3:8b", "chat"))
	r.Register("undeclared", ollamaConfig("phi4"))

	fallback, err := agent.New(&config.AgentConfig{
		Provider: &config.ProviderConfig{Name: "ollama"},
		Model:    &config.ModelConfig{Name: "default-model"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name      string
		agent     string
		protocol  protocol.Protocol
		wantModel string
		wantErr   error
	}{
		{"empty name uses fallback", "", protocol.Tools, "default-model", nil},
		{"declares tools", "both", protocol.Tools, "qwen3:8b", nil},
		{"chat session on chat agent", "freeform", protocol.Chat, "llama3:8b", nil},
		{"tools session on chat agent", "freeform", protocol.Tools, "", agent.ErrProtocolUnsupported},
		{"no declared protocols", "undeclared", protocol.Tools, "phi4", nil},
		{"unknown", "missing", protocol.Tools, "", agent.ErrAgentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.agent, tt.protocol, fallback)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got.Model() != tt.wantModel {
				t.Errorf("got model %q, want %q", got.Model(), tt.wantModel)
			}
		})
	}
}

func TestRegistry_List(t *testing.T) {
	r := agent.NewRegistry()
	r.Register("zeta", ollamaConfig("z", "tools", "embeddings"))
	r.Register("alpha", config.AgentConfig{Provider: &config.ProviderConfig{Name: "openai"}})

	infos := r.List()
	if len(infos) != 2 {
		t.Fatalf("got %d agents, want 2", len(infos))
	}

	if infos[0].Name != "alpha" || infos[0].Provider != "openai" || infos[0].Model != "" || infos[0].Protocols != nil {
		t.Errorf("alpha = %+v", infos[0])
	}
	if infos[1].Name != "zeta" || infos[1].Model != "z" {
		t.Errorf("zeta = %+v", infos[1])
	}
	if len(infos[1].Protocols) != 1 || infos[1].Protocols[0] != protocol.Tools {
		t.Errorf("zeta protocols = %v, want [tools]", infos[1].Protocols)
	}

	if got := agent.NewRegistry().List(); len(got) != 0 {
		t.Errorf("empty registry listed %v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := agent.New(&config.AgentConfig{Provider: &config.ProviderConfig{Name: "openai"}})
	if !errors.Is(err, agent.ErrNoModel) {
		t.Errorf("got %v, want ErrNoModel", err)
	}

	_, err = agent.New(&config.AgentConfig{
		Provider: &config.ProviderConfig{Name: "smoke-signals"},
		Model:    &config.ModelConfig{Name: "m"},
	})
	if !errors.Is(err, providers.ErrUnknownProvider) {
		t.Errorf("got %v, want ErrUnknownProvider", err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := agent.NewRegistry()

	for i := range 10 {
		name := string(rune('a' + i))
		r.Register(name, ollamaConfig("model-"+name, "chat"))
	}

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			r.List()
		})
		wg.Go(func() {
			r.Resolve("a", protocol.Chat, nil)
		})
		wg.Go(func() {
			r.Get("b")
		})
	}
	wg.Wait()
}
