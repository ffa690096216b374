package queue

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// BreakerStore persists one circuit breaker per external-service key:
// closed/open/half_open with a rolling failure window. The queue's worker
// loop and the task handlers in this module do not call Allow,
// RecordSuccess or RecordFailure, so an open breaker does not defer any
// task; only ListOpen is read, for fleet health.
type BreakerStore struct {
	pool *pgxpool.Pool
}

// NewBreakerStore creates a BreakerStore.
func NewBreakerStore(pool *pgxpool.Pool) *BreakerStore {
	return &BreakerStore{pool: pool}
}

// Allow reports whether serviceKey's breaker currently permits a call. A
// missing row is treated as closed (never tripped). An open breaker whose
// cooldown has elapsed is promoted to half_open as a side effect, so only
// one probe call is allowed through before the breaker's next state
// transition.
func (b *BreakerStore) Allow(ctx context.Context, serviceKey string, cooldown time.Duration) (bool, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return false, engineerr.InternalErr("queue.BreakerStore.Allow", "starting transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var state string
	var openedAt *time.Time
	const selectQ = `SELECT state, opened_at FROM circuit_breakers WHERE service_key = $1 FOR UPDATE`
	err = tx.QueryRow(ctx, selectQ, serviceKey).Scan(&state, &openedAt)
	if err != nil {
		if errorsIsNoRows(err) {
			return true, nil // no breaker row yet: treat as closed
		}
		return false, engineerr.InternalErr("queue.BreakerStore.Allow", "loading breaker", err)
	}

	switch models.CircuitState(state) {
	case models.CircuitClosed:
		return true, nil
	case models.CircuitHalfOpen:
		// The probe is the call whose Allow made the half_open promotion.
		return false, nil
	case models.CircuitOpen:
		if openedAt != nil && time.Since(*openedAt) >= cooldown {
			const probeQ = `UPDATE circuit_breakers SET state = 'half_open', half_open_probe_at = now() WHERE service_key = $1`
			if _, err := tx.Exec(ctx, probeQ, serviceKey); err != nil {
				return false, engineerr.InternalErr("queue.BreakerStore.Allow", "promoting to half_open", err)
			}
			if err := tx.Commit(ctx); err != nil {
				return false, engineerr.InternalErr("queue.BreakerStore.Allow", "committing half_open promotion", err)
			}
			return true, nil
		}
		return false, nil
	default:
		return true, nil
	}
}

// RecordSuccess closes serviceKey's breaker and resets its failure count.
// A success observed while half_open ends the probe in closed.
func (b *BreakerStore) RecordSuccess(ctx context.Context, serviceKey string) error {
	const q = `
		INSERT INTO circuit_breakers (service_key, state, failure_count, window_started_at)
		VALUES ($1, 'closed', 0, now())
		ON CONFLICT (service_key) DO UPDATE
		SET state = 'closed', failure_count = 0, opened_at = NULL, half_open_probe_at = NULL
	`
	if _, err := b.pool.Exec(ctx, q, serviceKey); err != nil {
		return engineerr.InternalErr("queue.BreakerStore.RecordSuccess", "closing breaker", err)
	}
	return nil
}

// RecordFailure increments serviceKey's rolling failure count within
// window, opening the breaker once threshold is reached. A failure seen
// while half_open immediately re-opens the breaker.
func (b *BreakerStore) RecordFailure(ctx context.Context, serviceKey string, threshold int, window time.Duration) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return engineerr.InternalErr("queue.BreakerStore.RecordFailure", "starting transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var state string
	var failureCount int
	var windowStartedAt time.Time
	const selectQ = `
		INSERT INTO circuit_breakers (service_key, state, failure_count, window_started_at)
		VALUES ($1, 'closed', 0, now())
		ON CONFLICT (service_key) DO UPDATE SET service_key = EXCLUDED.service_key
		RETURNING state, failure_count, window_started_at
	`
	if err := tx.QueryRow(ctx, selectQ, serviceKey).Scan(&state, &failureCount, &windowStartedAt); err != nil {
		return engineerr.InternalErr("queue.BreakerStore.RecordFailure", "loading breaker", err)
	}

	if models.CircuitState(state) == models.CircuitHalfOpen {
		const reopenQ = `UPDATE circuit_breakers SET state = 'open', opened_at = now(), failure_count = failure_count + 1 WHERE service_key = $1`
		if _, err := tx.Exec(ctx, reopenQ, serviceKey); err != nil {
			return engineerr.InternalErr("queue.BreakerStore.RecordFailure", "re-opening breaker", err)
		}
		return tx.Commit(ctx)
	}

	if time.Since(windowStartedAt) > window {
		failureCount = 0
		windowStartedAt = time.Now()
	}
	failureCount++

	if failureCount >= threshold {
		const openQ = `
			UPDATE circuit_breakers
			SET state = 'open', failure_count = $1, window_started_at = $2, opened_at = now()
			WHERE service_key = $3
		`
		if _, err := tx.Exec(ctx, openQ, failureCount, windowStartedAt, serviceKey); err != nil {
			return engineerr.InternalErr("queue.BreakerStore.RecordFailure", "opening breaker", err)
		}
	} else {
		const updateQ = `
			UPDATE circuit_breakers
			SET failure_count = $1, window_started_at = $2
			WHERE service_key = $3
		`
		if _, err := tx.Exec(ctx, updateQ, failureCount, windowStartedAt, serviceKey); err != nil {
			return engineerr.InternalErr("queue.BreakerStore.RecordFailure", "incrementing failure count", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return engineerr.InternalErr("queue.BreakerStore.RecordFailure", "committing failure record", err)
	}
	return nil
}

// ListOpen returns the service keys currently in the open state, for the
// operator health endpoint.
func (b *BreakerStore) ListOpen(ctx context.Context) ([]string, error) {
	const q = `SELECT service_key FROM circuit_breakers WHERE state = 'open' ORDER BY service_key`
	rows, err := b.pool.Query(ctx, q)
	if err != nil {
		return nil, engineerr.InternalErr("queue.BreakerStore.ListOpen", "listing open breakers", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, engineerr.InternalErr("queue.BreakerStore.ListOpen", "scanning service key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func errorsIsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
