// Package eventlog implements the per-session append-only event log: the
// durable source of truth for everything a session observes, a message
// projection derived from it, and the PostgreSQL LISTEN/NOTIFY plumbing
// that lets SSE subscribers follow the tail in real time.
package eventlog

import "errors"

var (
	// ErrSessionNotFound indicates the referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSequenceConflict indicates a concurrent append raced this one and
	// won the next sequence number; the caller should retry.
	ErrSequenceConflict = errors.New("event sequence conflict")
)

// GlobalSessionsChannel is the NOTIFY channel carrying session-level
// status transitions, for a dashboard-style subscriber that watches every
// session rather than one in particular. No code in this module sends
// NOTIFY on it.
const GlobalSessionsChannel = "sessions"

// SessionChannel returns the NOTIFY channel name for one session's events.
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}
