package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// engineYAMLConfig is the on-disk shape of engine.yaml: agent and model
// provider definitions plus the queue/registry/retention/http tuning
// sections. All sections are optional; missing ones fall back to
// defaults.
type engineYAMLConfig struct {
	Defaults       *Defaults                       `yaml:"defaults"`
	Agents         map[string]AgentConfig           `yaml:"agents"`
	ModelProviders map[string]ModelProviderConfig   `yaml:"model_providers"`
	Queue          *QueueConfig                     `yaml:"queue"`
	Registry       *RegistryConfig                  `yaml:"registry"`
	Retention      *RetentionConfig                 `yaml:"retention"`
	HTTP           *HTTPConfig                      `yaml:"http"`
}

// configLoader reads and parses one YAML file from configDir, expanding
// environment variables before unmarshalling.
type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, out interface{}) error {
	path := filepath.Join(l.configDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return NewLoadError(path, err)
	}
	expanded := ExpandEnv(data)
	if err := yaml.Unmarshal(expanded, out); err != nil {
		return NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return nil
}

// Initialize loads and validates the engine's configuration from
// configDir/engine.yaml, overlaying a .env file if present, and returns
// a fully populated, validated Config. Missing optional sections receive
// their built-in defaults.
func Initialize(configDir string) (*Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, NewLoadError(envPath, err)
		}
	}

	loader := &configLoader{configDir: configDir}
	var raw engineYAMLConfig
	if err := loader.loadYAML("engine.yaml", &raw); err != nil {
		return nil, err
	}

	cfg, err := buildConfig(configDir, &raw)
	if err != nil {
		return nil, err
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return cfg, nil
}

// buildConfig assembles a Config from the raw YAML document, merging
// defaults where a section or a field within defaults is absent.
func buildConfig(configDir string, raw *engineYAMLConfig) (*Config, error) {
	defaults := DefaultDefaults()
	if raw.Defaults != nil {
		if err := mergo.Merge(defaults, raw.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging defaults: %w", err)
		}
	}

	agents := make(map[string]*AgentConfig, len(raw.Agents))
	for name, agent := range raw.Agents {
		agentCopy := agent
		defaults.ApplyTo(&agentCopy)
		agents[name] = &agentCopy
	}
	agentRegistry := NewAgentRegistry(agents)

	providers := make(map[string]*ModelProviderConfig, len(raw.ModelProviders))
	for name, provider := range raw.ModelProviders {
		providerCopy := provider
		providers[name] = &providerCopy
	}
	modelProviderRegistry := NewModelProviderRegistry(providers)

	queue := DefaultQueueConfig()
	if raw.Queue != nil {
		if err := mergo.Merge(queue, raw.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging queue config: %w", err)
		}
	}

	registry := DefaultRegistryConfig()
	if raw.Registry != nil {
		if err := mergo.Merge(registry, raw.Registry, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging registry config: %w", err)
		}
	}

	retention := DefaultRetentionConfig()
	if raw.Retention != nil {
		if err := mergo.Merge(retention, raw.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging retention config: %w", err)
		}
	}

	httpCfg := DefaultHTTPConfig()
	if raw.HTTP != nil {
		if err := mergo.Merge(httpCfg, raw.HTTP, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging http config: %w", err)
		}
	}

	return &Config{
		configDir:             configDir,
		Defaults:              defaults,
		AgentRegistry:         agentRegistry,
		ModelProviderRegistry: modelProviderRegistry,
		Queue:                 queue,
		Registry:              registry,
		Retention:             retention,
		HTTP:                  httpCfg,
	}, nil
}
