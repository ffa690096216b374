package queue

import (
	"time"

	"github.com/turnengine/core/pkg/models"
)

// computeBackoff returns the delay before attempt's retry:
// base * 2^(attempt-1) + jitter, bounded by max.
func computeBackoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > max {
			delay = max
			break
		}
	}
	delay += models.Jitter(base)
	if delay > max {
		delay = max
	}
	return delay
}
