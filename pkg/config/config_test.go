package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigStats(t *testing.T) {
	cfg := validConfig()
	cfg.configDir = "/etc/engine"

	stats := cfg.Stats()
	assert.Equal(t, "/etc/engine", stats.ConfigDir)
	assert.Equal(t, 1, stats.AgentCount)
	assert.Equal(t, 1, stats.ModelProviders)
	assert.Equal(t, "/etc/engine", cfg.ConfigDir())
}
