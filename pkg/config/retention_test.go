package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetentionConfig(t *testing.T) {
	cfg := DefaultRetentionConfig()

	assert.Equal(t, 1*time.Hour, cfg.StreamDeltaGracePeriod)
	assert.Equal(t, 15*time.Minute, cfg.CompactionInterval)
}

func TestValidateRetention(t *testing.T) {
	tests := []struct {
		name      string
		retention *RetentionConfig
		wantErr   bool
		errMsg    string
	}{
		{
			name:      "valid defaults",
			retention: DefaultRetentionConfig(),
		},
		{
			name:      "nil retention",
			retention: nil,
			wantErr:   true,
			errMsg:    "missing required field",
		},
		{
			name: "grace period zero",
			retention: func() *RetentionConfig {
				r := DefaultRetentionConfig()
				r.StreamDeltaGracePeriod = 0
				return r
			}(),
			wantErr: true,
			errMsg:  "stream_delta_grace_period",
		},
		{
			name: "compaction interval zero",
			retention: func() *RetentionConfig {
				r := DefaultRetentionConfig()
				r.CompactionInterval = 0
				return r
			}(),
			wantErr: true,
			errMsg:  "compaction_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Retention: tt.retention}
			v := NewValidator(cfg)
			err := v.validateRetention()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
