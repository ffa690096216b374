// Package registry implements the durable worker fleet registry:
// registration, heartbeats, draining, and an aggregated fleet health
// view. Unlike pkg/queue's in-process worker pool, a registration here
// is visible across every process in the fleet, since it's backed by
// the workers table rather than an in-memory slice.
package registry

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// Registry is the worker registration and heartbeat persistence layer.
type Registry struct {
	pool *pgxpool.Pool
}

// New creates a Registry.
func New(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// Register inserts a new worker row in the active state.
func (r *Registry) Register(ctx context.Context, req models.RegisterWorkerRequest) (*models.Worker, error) {
	activityTypes, err := json.Marshal(req.ActivityTypes)
	if err != nil {
		return nil, engineerr.InternalErr("registry.Register", "marshaling activity types", err)
	}

	const q = `
		INSERT INTO workers (id, hostname, worker_group, activity_types, max_concurrency, accepting_tasks, status)
		VALUES ($1, $2, $3, $4, $5, true, 'active')
		RETURNING id, hostname, worker_group, activity_types, max_concurrency, current_load,
			accepting_tasks, backpressure_reason, status, last_heartbeat_at
	`
	id := models.NewID()
	row := r.pool.QueryRow(ctx, q, id, req.Hostname, req.WorkerGroup, activityTypes, req.MaxConcurrency)
	return scanWorker(row)
}

// Heartbeat renews a worker's liveness and reports its current load and
// backpressure state. It also revives a worker the staleness sweep had
// previously marked stale, since a late heartbeat is evidence the worker
// is alive after all.
func (r *Registry) Heartbeat(ctx context.Context, req models.HeartbeatRequest) error {
	const q = `
		UPDATE workers
		SET current_load = $2, accepting_tasks = $3, backpressure_reason = $4,
			last_heartbeat_at = now(),
			status = CASE WHEN status = 'stale' THEN 'active' ELSE status END
		WHERE id = $1 AND status != 'stopped'
	`
	tag, err := r.pool.Exec(ctx, q, req.WorkerID, req.CurrentLoad, req.AcceptingTasks, string(req.BackpressureReason))
	if err != nil {
		return engineerr.InternalErr("registry.Heartbeat", "updating worker", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.NotFoundErr("registry.Heartbeat", "worker not found or stopped", nil)
	}
	return nil
}

// Drain marks a worker as draining: it stops accepting new claims but
// keeps its existing leases until it finishes them and calls Deregister.
func (r *Registry) Drain(ctx context.Context, workerID string) error {
	const q = `UPDATE workers SET status = 'draining', accepting_tasks = false WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, workerID)
	if err != nil {
		return engineerr.InternalErr("registry.Drain", "updating worker", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.NotFoundErr("registry.Drain", "worker not found", nil)
	}
	return nil
}

// Deregister marks a worker stopped. The row is kept (not deleted) for
// fleet-history/audit purposes; Health excludes stopped workers.
func (r *Registry) Deregister(ctx context.Context, workerID string) error {
	const q = `UPDATE workers SET status = 'stopped', accepting_tasks = false WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, workerID)
	if err != nil {
		return engineerr.InternalErr("registry.Deregister", "updating worker", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.NotFoundErr("registry.Deregister", "worker not found", nil)
	}
	return nil
}

// List returns every worker row not in the stopped state.
func (r *Registry) List(ctx context.Context) ([]*models.Worker, error) {
	const q = `
		SELECT id, hostname, worker_group, activity_types, max_concurrency, current_load,
			accepting_tasks, backpressure_reason, status, last_heartbeat_at
		FROM workers
		WHERE status != 'stopped'
		ORDER BY hostname ASC
	`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, engineerr.InternalErr("registry.List", "querying workers", err)
	}
	defer rows.Close()

	var workers []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func scanWorker(row pgx.Row) (*models.Worker, error) {
	var w models.Worker
	var activityTypes []byte
	var status, backpressure string
	if err := row.Scan(&w.ID, &w.Hostname, &w.WorkerGroup, &activityTypes, &w.MaxConcurrency,
		&w.CurrentLoad, &w.AcceptingTasks, &backpressure, &status, &w.LastHeartbeatAt); err != nil {
		return nil, engineerr.InternalErr("registry.scanWorker", "scanning worker row", err)
	}
	if err := json.Unmarshal(activityTypes, &w.ActivityTypes); err != nil {
		return nil, engineerr.InternalErr("registry.scanWorker", "unmarshaling activity types", err)
	}
	w.Status = models.WorkerStatus(status)
	w.BackpressureReason = models.BackpressureReason(backpressure)
	return &w, nil
}
