package registry

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// queueHealth is the subset of queue.Store's read surface the dispatcher
// needs for fleet health. Defined here rather than imported to avoid
// pkg/registry depending on pkg/queue for two read-only queries.
type queueHealth interface {
	QueueDepthByType(ctx context.Context) (map[models.TaskType]int, error)
	CountByState(ctx context.Context, state models.TaskState) (int, error)
}

// breakerHealth is the subset of queue.BreakerStore's read surface the
// dispatcher needs.
type breakerHealth interface {
	ListOpen(ctx context.Context) ([]string, error)
}

// Dispatcher aggregates worker registrations and queue state into the
// fleet-wide health view an operator endpoint reports.
type Dispatcher struct {
	pool     *pgxpool.Pool
	registry *Registry
	queue    queueHealth
	breakers breakerHealth
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, registry *Registry, queue queueHealth, breakers breakerHealth) *Dispatcher {
	return &Dispatcher{pool: pool, registry: registry, queue: queue, breakers: breakers}
}

// Health aggregates every registered worker's capacity and load with
// current queue depth, dead-letter size, and open circuit breakers.
func (d *Dispatcher) Health(ctx context.Context) (*models.FleetHealth, error) {
	workers, err := d.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	health := &models.FleetHealth{}
	for _, w := range workers {
		health.TotalCapacity += w.MaxConcurrency
		health.TotalLoad += w.CurrentLoad
		health.WorkersTotal++
		if w.AcceptingTasks && w.Status == models.WorkerActive {
			health.WorkersAccepting++
		}
	}

	depth, err := d.queue.QueueDepthByType(ctx)
	if err != nil {
		return nil, err
	}
	health.QueueDepthByType = depth

	pending, err := d.queue.CountByState(ctx, models.TaskPending)
	if err != nil {
		return nil, err
	}
	health.PendingTasks = pending

	claimed, err := d.queue.CountByState(ctx, models.TaskClaimed)
	if err != nil {
		return nil, err
	}
	health.ClaimedTasks = claimed

	deadLettered, err := d.queue.CountByState(ctx, models.TaskDeadLetter)
	if err != nil {
		return nil, err
	}
	health.DeadLetterSize = deadLettered

	open, err := d.breakers.ListOpen(ctx)
	if err != nil {
		return nil, engineerr.InternalErr("registry.Dispatcher.Health", "listing open breakers", err)
	}
	health.OpenCircuitBreakers = open

	return health, nil
}
