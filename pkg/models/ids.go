// Package models holds the plain domain types shared by every component of
// the engine: sessions, events, tasks, workers, circuit breakers, and
// dead-letter entries. These are storage-agnostic — pkg/database and
// pkg/eventlog/pkg/queue/pkg/registry map them to and from Postgres rows.
package models

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// idEntropy is a mutex-guarded entropy source for ULID generation. The
// default ulid.DefaultEntropy is not safe for concurrent use, and this
// engine mints ids from many goroutines (turn workers, queue claimers,
// registry heartbeats) concurrently.
var idEntropy = struct {
	mu sync.Mutex
	r  *ulid.MonotonicEntropy
}{r: ulid.Monotonic(rand.Reader, 0)}

// NewID mints a time-ordered, lexicographically sortable identifier for a
// persistent entity (Session, Task, Worker, ...). ULIDs are chosen over
// plain UUIDv4 so that index scans on insertion order stay cache-friendly
// without needing a separate created_at sort key.
func NewID() string {
	idEntropy.mu.Lock()
	defer idEntropy.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy.r).String()
}

// NewEphemeralID mints a plain random identifier for values that are never
// persisted — SSE connection ids, in-memory lease tokens, request ids.
func NewEphemeralID() string {
	return uuid.NewString()
}

// jitter returns a random duration in [0, max). Used by queue backoff to
// avoid thundering-herd retries.
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// Jitter is exported so pkg/queue can use the same entropy-backed jitter
// instead of hand-rolling math/rand.
func Jitter(max time.Duration) time.Duration { return jitter(max) }
