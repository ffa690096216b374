package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/models"
)

// Pool runs a fixed-size set of polling workers against Store plus a
// background reclaim sweep that resets expired leases back to pending.
type Pool struct {
	id      string
	store   *Store
	breaker *BreakerStore
	cfg     *config.QueueConfig

	workers []*worker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu             sync.Mutex
	lastSweepAt    time.Time
	tasksReclaimed int
}

// WorkerSpec binds a TaskHandler to the activity types it handles and
// how many concurrent workers should run it.
type WorkerSpec struct {
	Handler       TaskHandler
	ActivityTypes []models.TaskType
	Concurrency   int
}

// NewPool creates a Pool. id identifies this process in logs and health
// reports (cmd/engine passes the hostname plus a random UUID).
func NewPool(id string, pool *pgxpool.Pool, cfg *config.QueueConfig) *Pool {
	return &Pool{
		id:      id,
		store:   NewStore(pool, cfg),
		breaker: NewBreakerStore(pool),
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start spawns the configured workers for each spec and the reclaim
// sweep goroutine. It returns immediately; workers run until Stop.
func (p *Pool) Start(ctx context.Context, specs []WorkerSpec) {
	for _, spec := range specs {
		concurrency := spec.Concurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		for i := 0; i < concurrency; i++ {
			w := newWorker(fmt.Sprintf("%s-w%d-%d", p.id, i, len(p.workers)), p.store, spec.Handler, spec.ActivityTypes, p.cfg)
			p.workers = append(p.workers, w)
			p.wg.Add(1)
			go func(w *worker) {
				defer p.wg.Done()
				w.run(ctx, p.stopCh)
			}(w)
		}
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runReclaimSweep(ctx)
	}()
}

func (p *Pool) runReclaimSweep(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReclaimSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			n, err := p.store.ReclaimExpired(ctx)
			p.mu.Lock()
			p.lastSweepAt = time.Now()
			if err == nil {
				p.tasksReclaimed += n
			}
			p.mu.Unlock()
		}
	}
}

// Stop signals all workers to finish their current task and exit, then
// waits up to config.GracefulShutdownTimeout for them to do so.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.GracefulShutdownTimeout):
	}
}

// Health reports this pool process's worker and queue state, for the
// operator health endpoint.
func (p *Pool) Health(ctx context.Context) PoolHealth {
	p.mu.Lock()
	lastSweep := p.lastSweepAt
	reclaimed := p.tasksReclaimed
	p.mu.Unlock()

	health := PoolHealth{
		WorkerID:       p.id,
		TotalWorkers:   len(p.workers),
		LastSweepAt:    lastSweep,
		TasksReclaimed: reclaimed,
	}

	claimed, err := p.store.CountByState(ctx, models.TaskPending)
	if err != nil {
		health.DBReachable = false
		health.DBError = err.Error()
		return health
	}
	health.DBReachable = true
	health.QueueDepth = claimed

	if n, err := p.store.CountByState(ctx, models.TaskClaimed); err == nil {
		health.ClaimedTasks = n
	}

	active := 0
	stats := make([]WorkerHealth, 0, len(p.workers))
	for _, w := range p.workers {
		h := w.health()
		stats = append(stats, h)
		if h.Status == "working" {
			active++
		}
	}
	health.ActiveWorkers = active
	health.WorkerStats = stats
	health.IsHealthy = health.DBReachable

	return health
}
