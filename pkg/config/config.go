package config

// Config is the fully loaded, validated configuration for one engine
// process: agent and model provider registries plus the queue,
// registry, retention, and HTTP tuning knobs.
type Config struct {
	configDir string

	Defaults              *Defaults
	AgentRegistry         *AgentRegistry
	ModelProviderRegistry *ModelProviderRegistry
	Queue                 *QueueConfig
	Registry              *RegistryConfig
	Retention             *RetentionConfig
	HTTP                  *HTTPConfig
}

// ConfigDir returns the directory this configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats is a snapshot of configuration cardinality, useful for the
// health endpoint and startup logging.
type Stats struct {
	ConfigDir      string `json:"config_dir"`
	AgentCount     int    `json:"agent_count"`
	ModelProviders int    `json:"model_provider_count"`
}

// Stats returns a snapshot of c's cardinality.
func (c *Config) Stats() Stats {
	return Stats{
		ConfigDir:      c.configDir,
		AgentCount:     c.AgentRegistry.Len(),
		ModelProviders: c.ModelProviderRegistry.Len(),
	}
}
