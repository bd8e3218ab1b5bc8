// Package config holds the agent configuration shared by the agent package
// and the kernel configuration file.
package config

import "os"

const (
	defaultProvider    = "openai"
	defaultModel       = "gpt-4o-mini"
	defaultAPIKeyEnv   = "OPENAI_API_KEY"
	defaultTemperature = 0.1
)

// ProviderConfig selects and addresses a model provider.
type ProviderConfig struct {
	Name      string         `json:"name" toml:"name"`
	BaseURL   string         `json:"base_url,omitempty" toml:"base_url"`
	APIKey    string         `json:"api_key,omitempty" toml:"api_key"`
	APIKeyEnv string         `json:"api_key_env,omitempty" toml:"api_key_env"`
	Options   map[string]any `json:"options,omitempty" toml:"options"`
}

// ResolveAPIKey returns the configured key, falling back to the environment
// variable named by APIKeyEnv.
func (p *ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// ModelConfig names a model and its request options. Capabilities keys are
// protocol names ("chat", "tools"); values hold per-protocol options.
type ModelConfig struct {
	Name         string                    `json:"name" toml:"name"`
	Capabilities map[string]map[string]any `json:"capabilities,omitempty" toml:"capabilities"`
	Options      map[string]any            `json:"options,omitempty" toml:"options"`
}

// AgentConfig describes one model endpoint.
type AgentConfig struct {
	Name     string          `json:"name,omitempty" toml:"name"`
	Provider *ProviderConfig `json:"provider,omitempty" toml:"provider"`
	Model    *ModelConfig    `json:"model,omitempty" toml:"model"`
}

// DefaultAgentConfig returns an OpenAI-compatible configuration with a low
// sampling temperature suited to code generation.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Name: "default",
		Provider: &ProviderConfig{
			Name:      defaultProvider,
			APIKeyEnv: defaultAPIKeyEnv,
		},
		Model: &ModelConfig{
			Name: defaultModel,
			Capabilities: map[string]map[string]any{
				"chat":  {},
				"tools": {"tool_choice": "auto"},
			},
			Options: map[string]any{"temperature": defaultTemperature},
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *AgentConfig) Merge(source *AgentConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.Provider != nil {
		if c.Provider == nil {
			c.Provider = &ProviderConfig{}
		}
		c.Provider.Merge(source.Provider)
	}

	if source.Model != nil {
		if c.Model == nil {
			c.Model = &ModelConfig{}
		}
		c.Model.Merge(source.Model)
	}
}

// Merge applies non-zero values from source into c. Option maps are merged
// key by key.
func (c *ProviderConfig) Merge(source *ProviderConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.APIKeyEnv != "" {
		c.APIKeyEnv = source.APIKeyEnv
	}
	c.Options = mergeOptions(c.Options, source.Options)
}

// Merge applies non-zero values from source into c.
func (c *ModelConfig) Merge(source *ModelConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if len(source.Capabilities) > 0 {
		c.Capabilities = source.Capabilities
	}
	c.Options = mergeOptions(c.Options, source.Options)
}

func mergeOptions(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
