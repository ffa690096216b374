package config

import "time"

// QueueConfig tunes the durable task queue: leasing, backoff, and the
// background sweep that reclaims expired leases.
type QueueConfig struct {
	// LeaseDuration is how long a claimed task's lease is held before it is
	// eligible for reclaim by the sweep.
	LeaseDuration time.Duration `yaml:"lease_duration"`

	// BackoffBase is the base delay of the exponential backoff applied
	// between attempts: base * 2^(attempt-1) + jitter.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMax bounds the computed backoff delay.
	BackoffMax time.Duration `yaml:"backoff_max"`

	// MaxAttemptsDefault is applied to EnqueueTaskRequests that don't set
	// MaxAttempts explicitly.
	MaxAttemptsDefault int `yaml:"max_attempts_default"`

	// PollInterval is the base interval workers wait between claim
	// attempts when the queue is empty.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval so
	// workers polling in lockstep don't stay synchronized.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// ReclaimSweepInterval is how often the reclaim sweep scans for tasks
	// whose lease has expired.
	ReclaimSweepInterval time.Duration `yaml:"reclaim_sweep_interval"`

	// GracefulShutdownTimeout bounds how long a worker waits for its
	// in-flight tasks to finish before abandoning their leases on
	// shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		LeaseDuration:           30 * time.Second,
		BackoffBase:             1 * time.Second,
		BackoffMax:              5 * time.Minute,
		MaxAttemptsDefault:      5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      250 * time.Millisecond,
		ReclaimSweepInterval:    15 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
