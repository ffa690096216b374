package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/engineerr"
)

// reclaimer is the subset of queue.Store's write surface the staleness
// sweep needs to recover work orphaned by a dead worker. Defined here
// rather than imported to avoid pkg/registry depending on pkg/queue for
// a single method.
type reclaimer interface {
	ReclaimExpired(ctx context.Context) (int, error)
}

// Sweeper periodically marks workers whose heartbeat has gone stale and
// triggers lease reclamation so their claimed tasks become available
// again. This is the same sweep-as-background-goroutine shape as
// pkg/queue's lease reclaim and pkg/eventlog's compaction sweep,
// generalized from tasks/events to worker registrations.
type Sweeper struct {
	pool   *pgxpool.Pool
	queue  reclaimer
	cfg    *config.RegistryConfig
	stopCh chan struct{}
}

// NewSweeper creates a Sweeper. queue triggers lease reclaim once stale
// workers are marked, since a stale worker's claimed tasks still hold
// leases until those leases expire on their own schedule — the sweep
// only needs to make sure reclaim keeps running, not reach into the
// tasks table directly.
func NewSweeper(pool *pgxpool.Pool, queue reclaimer, cfg *config.RegistryConfig) *Sweeper {
	return &Sweeper{pool: pool, queue: queue, cfg: cfg, stopCh: make(chan struct{})}
}

// Run sweeps on cfg.SweepInterval until ctx is cancelled or Stop is
// called.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				slog.Error("registry staleness sweep failed", "error", err)
			}
		}
	}
}

// Stop ends a running sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) sweep(ctx context.Context) error {
	const q = `
		UPDATE workers
		SET status = 'stale'
		WHERE status = 'active' AND last_heartbeat_at < $1
	`
	cutoff := time.Now().Add(-s.cfg.StaleThreshold)
	tag, err := s.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return engineerr.InternalErr("registry.Sweeper.sweep", "marking stale workers", err)
	}

	if tag.RowsAffected() > 0 {
		slog.Warn("marked workers stale", "count", tag.RowsAffected())
	}

	reclaimed, err := s.queue.ReclaimExpired(ctx)
	if err != nil {
		return engineerr.InternalErr("registry.Sweeper.sweep", "reclaiming expired leases", err)
	}
	if reclaimed > 0 {
		slog.Info("reclaimed expired task leases", "count", reclaimed)
	}
	return nil
}
