// Package config provides configuration management for the engine:
// agent definitions, model provider credentials, queue/registry tuning,
// and the HTTP surface — loaded from YAML with environment overlay.
package config

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// AgentConfig is one configured agent: a system prompt, tool/capability
// set, and default model applied to sessions.
type AgentConfig struct {
	SystemPrompt  string          `yaml:"system_prompt" validate:"required"`
	ModelProvider string          `yaml:"model_provider" validate:"required"`
	Capabilities  []CapabilityRef `yaml:"capabilities,omitempty"`

	// MaxIterations bounds how many Plan/InvokeModel/DispatchTools cycles
	// one turn may take before it fails with iteration_limit.
	MaxIterations int `yaml:"max_iterations,omitempty" validate:"omitempty,min=1"`

	// MaxWallTime bounds one turn's total wall-clock time before it fails
	// with timeout.
	MaxWallTime time.Duration `yaml:"max_wall_time,omitempty"`
}

// SortedCapabilities returns a's capabilities ordered by Position, the
// deterministic composition order the Turn Loop's Plan state uses when
// building tool schemas and prompt fragments.
func (a *AgentConfig) SortedCapabilities() []CapabilityRef {
	out := make([]CapabilityRef, len(a.Capabilities))
	copy(out, a.Capabilities)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// AgentRegistry stores agent configurations in memory with thread-safe,
// defensive-copy access.
type AgentRegistry struct {
	agents map[string]*AgentConfig
	mu     sync.RWMutex
}

// NewAgentRegistry creates a new agent registry from a defensive copy of
// agents.
func NewAgentRegistry(agents map[string]*AgentConfig) *AgentRegistry {
	copied := make(map[string]*AgentConfig, len(agents))
	for k, v := range agents {
		copied[k] = v
	}
	return &AgentRegistry{agents: copied}
}

// Get retrieves an agent configuration by id.
func (r *AgentRegistry) Get(id string) (*AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return agent, nil
}

// GetAll returns a copy of every registered agent.
func (r *AgentRegistry) GetAll() map[string]*AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*AgentConfig, len(r.agents))
	for k, v := range r.agents {
		out[k] = v
	}
	return out
}

// Has reports whether id is a registered agent.
func (r *AgentRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
