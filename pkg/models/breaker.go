package models

import "time"

// CircuitState is the state of a CircuitBreaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker guards one external-service dependency (e.g.
// "llm:openai").
type CircuitBreaker struct {
	ServiceKey      string
	State           CircuitState
	FailureCount    int
	WindowStartedAt time.Time
	OpenedAt        *time.Time
	HalfOpenProbeAt *time.Time
}

// DeadLetterEntry is a permanent copy of a task whose attempts are
// exhausted.
type DeadLetterEntry struct {
	TaskID          string
	OriginalPayload []byte
	LastError       string
	MovedAt         time.Time
}
