// Package toolexecutor provides an in-memory turn.ToolRegistry plus a
// handful of reference turn.ToolExecutor implementations, so the turn
// loop can run end-to-end against real tool calls without an external
// MCP server or subprocess.
package toolexecutor

import (
	"sync"

	"github.com/turnengine/core/pkg/turn"
)

// Registry is an in-memory turn.ToolRegistry: a fixed set of executors
// registered at construction time and looked up by name for the lifetime
// of the process.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]turn.ToolExecutor
	schemas map[string]turn.ToolSchema
}

// NewRegistry builds a Registry from a list of executors, keyed by each
// executor's own Describe().Name.
func NewRegistry(tools ...turn.ToolExecutor) *Registry {
	r := &Registry{
		tools:   make(map[string]turn.ToolExecutor, len(tools)),
		schemas: make(map[string]turn.ToolSchema, len(tools)),
	}
	for _, t := range tools {
		schema := t.Describe()
		r.tools[schema.Name] = t
		r.schemas[schema.Name] = schema
	}
	return r
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (turn.ToolExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the ToolSchema for each requested name, in the order
// given, silently skipping names this registry does not recognize — an
// agent's capability list may reference tools this process was not built
// with, since capabilities are configured statically rather than
// provisioned at runtime.
func (r *Registry) Schemas(names []string) []turn.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]turn.ToolSchema, 0, len(names))
	for _, name := range names {
		if s, ok := r.schemas[name]; ok {
			out = append(out, s)
		}
	}
	return out
}
