package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// enqueuer is the subset of queue.Store's write surface the compaction
// sweep needs. Defined here rather than imported to avoid pkg/eventlog
// depending on pkg/queue for a single method.
type enqueuer interface {
	Enqueue(ctx context.Context, req models.EnqueueTaskRequest) (*models.Task, error)
}

// Compactor finds sessions with stream.delta events older than the
// configured grace period and enqueues a CompactEvents task per session:
// stream.delta is a transient replay aid for an in-flight turn, not part
// of the durable record once the turn's message.agent event has
// superseded it.
type Compactor struct {
	pool   *pgxpool.Pool
	store  *Store
	queue  enqueuer
	cfg    *config.RetentionConfig
	stopCh chan struct{}
}

// NewCompactor creates a Compactor. queue is where CompactEvents tasks
// are enqueued for a worker to execute via Compact.
func NewCompactor(pool *pgxpool.Pool, store *Store, queue enqueuer, cfg *config.RetentionConfig) *Compactor {
	return &Compactor{pool: pool, store: store, queue: queue, cfg: cfg, stopCh: make(chan struct{})}
}

// Run sweeps on cfg.CompactionInterval until ctx is cancelled or Stop is
// called.
func (c *Compactor) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CompactionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.sweep(ctx); err != nil {
				slog.Error("compaction sweep failed", "error", err)
			}
		}
	}
}

// Stop ends a running sweep loop.
func (c *Compactor) Stop() {
	close(c.stopCh)
}

// sweep finds sessions with eligible stream.delta rows and enqueues one
// CompactEvents task per session, bounded to sequences strictly before
// the terminal message.agent event's own sequence.
func (c *Compactor) sweep(ctx context.Context) error {
	const q = `
		SELECT d.session_id, MIN(a.sequence) AS before_sequence
		FROM events d
		JOIN events a
			ON a.session_id = d.session_id
			AND a.type = 'message.agent'
			AND a.sequence > d.sequence
			AND a.created_at < $1
		WHERE d.type = 'stream.delta'
		GROUP BY d.session_id
	`
	cutoff := time.Now().Add(-c.cfg.StreamDeltaGracePeriod)
	rows, err := c.pool.Query(ctx, q, cutoff)
	if err != nil {
		return engineerr.InternalErr("eventlog.Compactor.sweep", "querying compaction candidates", err)
	}
	defer rows.Close()

	type candidate struct {
		sessionID      string
		beforeSequence int
	}
	var candidates []candidate
	for rows.Next() {
		var cand candidate
		if err := rows.Scan(&cand.sessionID, &cand.beforeSequence); err != nil {
			return engineerr.InternalErr("eventlog.Compactor.sweep", "scanning compaction candidate", err)
		}
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, cand := range candidates {
		payload, err := json.Marshal(models.CompactEventsPayload{
			SessionID:      cand.sessionID,
			BeforeSequence: cand.beforeSequence,
		})
		if err != nil {
			slog.Error("compaction: marshaling payload failed", "session_id", cand.sessionID, "error", err)
			continue
		}
		_, err = c.queue.Enqueue(ctx, models.EnqueueTaskRequest{
			SessionID:   cand.sessionID,
			Type:        models.TaskCompactEvents,
			Payload:     payload,
			MaxAttempts: 3,
		})
		if err != nil {
			slog.Error("compaction: enqueue failed", "session_id", cand.sessionID, "error", err)
		}
	}
	return nil
}

// Compact deletes stream.delta rows for sessionID with sequence strictly
// before beforeSequence. It is the CompactEvents task handler's body
// (wired in cmd/engine), kept here since it operates directly on the events
// table Store and Publisher also own.
func (c *Compactor) Compact(ctx context.Context, sessionID string, beforeSequence int) (int64, error) {
	const q = `DELETE FROM events WHERE session_id = $1 AND type = 'stream.delta' AND sequence < $2`
	tag, err := c.pool.Exec(ctx, q, sessionID, beforeSequence)
	if err != nil {
		return 0, engineerr.InternalErr("eventlog.Compactor.Compact", "deleting stream.delta events", err)
	}
	return tag.RowsAffected(), nil
}
