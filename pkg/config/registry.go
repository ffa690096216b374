package config

import "time"

// RegistryConfig tunes worker registration and the staleness sweep that
// marks workers whose heartbeat has gone quiet.
type RegistryConfig struct {
	// HeartbeatInterval is how often a healthy worker is expected to send
	// a heartbeat.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// StaleThreshold is how long a worker's heartbeat can go unrenewed
	// before the sweep marks it stale. The sweep then returns claimed tasks
	// whose lease has expired to pending; a stale worker's unexpired
	// leases are not released early.
	StaleThreshold time.Duration `yaml:"stale_threshold"`

	// SweepInterval is how often the staleness sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultRegistryConfig returns the built-in registry defaults.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		HeartbeatInterval: 5 * time.Second,
		StaleThreshold:    30 * time.Second,
		SweepInterval:     10 * time.Second,
	}
}
