package config

import "time"

// Defaults holds system-wide fallback values applied to an AgentConfig
// when it doesn't set its own.
type Defaults struct {
	// ModelProvider names the model_provider entry used by agents that
	// don't specify one.
	ModelProvider string `yaml:"model_provider,omitempty"`

	// MaxIterations bounds Plan/InvokeModel/DispatchTools cycles per turn
	// for agents that don't set their own.
	MaxIterations int `yaml:"max_iterations,omitempty" validate:"omitempty,min=1"`

	// MaxWallTime bounds one turn's wall-clock time for agents that don't
	// set their own.
	MaxWallTime time.Duration `yaml:"max_wall_time,omitempty"`
}

// DefaultDefaults returns the built-in system-wide defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		MaxIterations: 25,
		MaxWallTime:   5 * time.Minute,
	}
}

// ApplyTo fills zero-valued fields of agent from d.
func (d *Defaults) ApplyTo(agent *AgentConfig) {
	if agent.ModelProvider == "" {
		agent.ModelProvider = d.ModelProvider
	}
	if agent.MaxIterations == 0 {
		agent.MaxIterations = d.MaxIterations
	}
	if agent.MaxWallTime == 0 {
		agent.MaxWallTime = d.MaxWallTime
	}
}
