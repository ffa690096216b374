package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEngineYAML(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.yaml"), []byte(content), 0o644))
}

func TestInitializeLoadsValidConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ANTHROPIC_KEY", "sk-test")
	writeEngineYAML(t, dir, `
model_providers:
  default:
    type: anthropic
    model: claude-sonnet
    api_key_env: ${ANTHROPIC_KEY}
agents:
  triage:
    system_prompt: "You triage incoming alerts."
    model_provider: default
    capabilities:
      - name: fetch_logs
        position: 0
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.AgentRegistry.Len())
	assert.Equal(t, 1, cfg.ModelProviderRegistry.Len())

	provider, err := cfg.ModelProviderRegistry.Get("default")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", provider.APIKeyEnv)

	// queue/registry/retention/http all fall back to built-in defaults.
	assert.Equal(t, DefaultQueueConfig(), cfg.Queue)
	assert.Equal(t, DefaultRegistryConfig(), cfg.Registry)
	assert.Equal(t, DefaultHTTPConfig(), cfg.HTTP)
}

func TestInitializeAppliesDefaultsToAgent(t *testing.T) {
	dir := t.TempDir()
	writeEngineYAML(t, dir, `
defaults:
  model_provider: default
  max_iterations: 10
model_providers:
  default:
    type: openai
    model: gpt-5
    api_key_env: OPENAI_API_KEY
agents:
  triage:
    system_prompt: "You triage incoming alerts."
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	agent, err := cfg.AgentRegistry.Get("triage")
	require.NoError(t, err)
	assert.Equal(t, "default", agent.ModelProvider)
	assert.Equal(t, 10, agent.MaxIterations)
}

func TestInitializeMissingFileReturnsErrConfigNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeInvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	writeEngineYAML(t, dir, "agents: [this is not a map")

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitializeFailsValidationWithNoAgents(t *testing.T) {
	dir := t.TempDir()
	writeEngineYAML(t, dir, `
model_providers:
  default:
    type: anthropic
    model: claude-sonnet
    api_key_env: ANTHROPIC_API_KEY
`)

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
