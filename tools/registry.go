package tools

import (
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

// Decoder turns the JSON arguments of a tool call into code to run and a
// short description of it.
type Decoder func(args string) (code, description string, err error)

type entry struct {
	tool      protocol.Tool
	decode    Decoder
	advertise bool
}

// Registry holds the tools a structured parser accepts. Aliases decode
// like their target but are not advertised to the model.
type Registry struct {
	entries map[string]entry
	order   []string
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a new tool.
// Returns ErrAlreadyExists if a tool with the same name is already registered.
// Use Replace to update an existing tool's decoder.
func (r *Registry) Register(tool protocol.Tool, decode Decoder) error {
	if tool.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, decode: decode, advertise: true}
	r.order = append(r.order, tool.Name)
	return nil
}

// Alias accepts calls named alias and decodes them as target.
func (r *Registry) Alias(alias, target string) error {
	if alias == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[target]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	if _, exists := r.entries[alias]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, alias)
	}

	e.advertise = false
	r.entries[alias] = e
	return nil
}

// Replace updates an existing tool's definition and decoder.
// Returns ErrNotFound if no tool with the given name is registered.
func (r *Registry) Replace(tool protocol.Tool, decode Decoder) error {
	if tool.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[tool.Name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, decode: decode, advertise: e.advertise}
	return nil
}

// Get retrieves a decoder by tool name.
func (r *Registry) Get(name string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.decode, true
}

// List returns the advertised tool definitions in registration order.
func (r *Registry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]protocol.Tool, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e.advertise {
			tools = append(tools, e.tool)
		}
	}
	return tools
}

// Decode decodes a call to the named tool.
// Returns ErrNotFound if the tool is not registered.
func (r *Registry) Decode(name, args string) (code, description string, err error) {
	decode, exists := r.Get(name)
	if !exists {
		return "", "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return decode(args)
}
