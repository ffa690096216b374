package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentConfigSortedCapabilities(t *testing.T) {
	agent := &AgentConfig{
		Capabilities: []CapabilityRef{
			{Name: "search_runbooks", Position: 2},
			{Name: "fetch_logs", Position: 0},
			{Name: "query_metrics", Position: 1},
		},
	}

	sorted := agent.SortedCapabilities()
	require.Len(t, sorted, 3)
	assert.Equal(t, "fetch_logs", sorted[0].Name)
	assert.Equal(t, "query_metrics", sorted[1].Name)
	assert.Equal(t, "search_runbooks", sorted[2].Name)

	// Original slice order is untouched.
	assert.Equal(t, "search_runbooks", agent.Capabilities[0].Name)
}

func TestAgentRegistryGet(t *testing.T) {
	registry := NewAgentRegistry(map[string]*AgentConfig{
		"triage": {SystemPrompt: "You triage alerts.", ModelProvider: "default"},
	})

	agent, err := registry.Get("triage")
	require.NoError(t, err)
	assert.Equal(t, "You triage alerts.", agent.SystemPrompt)

	_, err = registry.Get("missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestAgentRegistryDefensiveCopy(t *testing.T) {
	source := map[string]*AgentConfig{
		"triage": {SystemPrompt: "original"},
	}
	registry := NewAgentRegistry(source)

	source["triage"] = &AgentConfig{SystemPrompt: "mutated"}

	agent, err := registry.Get("triage")
	require.NoError(t, err)
	assert.Equal(t, "original", agent.SystemPrompt)
}

func TestAgentRegistryGetAllIsCopy(t *testing.T) {
	registry := NewAgentRegistry(map[string]*AgentConfig{
		"triage": {SystemPrompt: "original"},
	})

	all := registry.GetAll()
	all["new-entry"] = &AgentConfig{SystemPrompt: "injected"}

	assert.False(t, registry.Has("new-entry"))
	assert.Equal(t, 1, registry.Len())
}
