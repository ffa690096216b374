package config

import "time"

// RetentionConfig tunes the event log compaction sweep that removes
// transient stream.delta rows once they're no longer needed to
// reconstruct a replay.
type RetentionConfig struct {
	// StreamDeltaGracePeriod is how long a stream.delta event is kept
	// after the message.agent event that supersedes it, before it is
	// eligible for compaction.
	StreamDeltaGracePeriod time.Duration `yaml:"stream_delta_grace_period"`

	// CompactionInterval is how often the compaction sweep runs.
	CompactionInterval time.Duration `yaml:"compaction_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		StreamDeltaGracePeriod: 1 * time.Hour,
		CompactionInterval:     15 * time.Minute,
	}
}
