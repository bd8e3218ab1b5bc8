// Package providers adapts model vendors to the provider-neutral request and
// response types in core. Every provider speaks the tools protocol: a chat
// completion that may answer with tool calls instead of, or next to, text.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/autods/core/config"
	"github.com/tailored-agentic-units/autods/core/response"
)

// Provider sends tools requests to one model endpoint.
type Provider interface {
	Name() string
	BaseURL() string

	// Tools performs a single completion.
	Tools(ctx context.Context, data *ToolsData) (*response.ToolsResponse, error)

	// ToolsStream performs a completion, calling onDelta with each text
	// fragment as it arrives. The returned response is the accumulated
	// message, identical in shape to the one Tools returns.
	ToolsStream(ctx context.Context, data *ToolsData, onDelta func(string)) (*response.ToolsResponse, error)
}

// BaseProvider holds the identity shared by all providers.
type BaseProvider struct {
	name    string
	baseURL string
}

// NewBaseProvider creates a BaseProvider.
func NewBaseProvider(name, baseURL string) *BaseProvider {
	return &BaseProvider{name: name, baseURL: baseURL}
}

// Name returns the provider name.
func (p *BaseProvider) Name() string {
	return p.name
}

// BaseURL returns the endpoint the provider talks to. Empty means the
// vendor default.
func (p *BaseProvider) BaseURL() string {
	return p.baseURL
}

var compatibleBaseURLs = map[string]string{
	"ollama":     "http://localhost:11434/v1",
	"deepinfra":  "https://api.deepinfra.com/v1/openai",
	"openrouter": "https://openrouter.ai/api/v1",
	"vllm":       "http://localhost:8000/v1",
}

// New creates the provider named by cfg. Names other than "anthropic" that
// are known to expose the OpenAI chat completions API are served by the
// OpenAI provider with their own base URL.
func New(cfg *config.ProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrUnknownProvider)
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	switch name {
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "openai", "compatible":
		return NewOpenAI(cfg, cfg.BaseURL), nil
	}

	if def, ok := compatibleBaseURLs[name]; ok {
		return NewOpenAI(cfg, compatibleBaseURL(cfg.BaseURL, def)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Name)
}

// compatibleBaseURL appends the /v1 prefix that OpenAI-compatible servers
// mount their API under when the configured URL is a bare host.
func compatibleBaseURL(configured, def string) string {
	base := strings.TrimRight(strings.TrimSpace(configured), "/")
	if base == "" {
		return def
	}
	if strings.Contains(base, "/v1") {
		return base
	}
	return base + "/v1"
}
