// Package queue implements the durable task queue: lease-based claiming
// with FOR UPDATE SKIP LOCKED, heartbeats, exponential backoff retries,
// a dead-letter queue, and a per-dependency circuit breaker.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/turnengine/core/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoTasksAvailable indicates no claimable task matched the poll.
	ErrNoTasksAvailable = errors.New("no tasks available")

	// ErrTaskNotFound indicates the referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrLeaseLost indicates a heartbeat or completion was attempted on a
	// task whose lease this caller no longer holds (it expired and was
	// reclaimed, or was never held).
	ErrLeaseLost = errors.New("task lease lost")
)

// TaskHandler executes one claimed task. Handlers are bound to activity
// types through the WorkerSpecs passed to Pool.Start.
//
// A nil error completes the task. A returned error is classified via
// engineerr.ClassOf: Transient/CircuitOpen errors requeue the task with
// backoff (or move it to the dead letter queue once attempts are
// exhausted); any other class fails the task permanently.
type TaskHandler interface {
	Handle(ctx context.Context, task *models.Task) error
}

// TaskHandlerFunc adapts a function to a TaskHandler.
type TaskHandlerFunc func(ctx context.Context, task *models.Task) error

// Handle calls f.
func (f TaskHandlerFunc) Handle(ctx context.Context, task *models.Task) error {
	return f(ctx, task)
}

// PoolHealth summarizes one worker pool process's state, surfaced by the
// operator health endpoint.
type PoolHealth struct {
	IsHealthy      bool           `json:"is_healthy"`
	DBReachable    bool           `json:"db_reachable"`
	DBError        string         `json:"db_error,omitempty"`
	WorkerID       string         `json:"worker_id"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	ClaimedTasks   int            `json:"claimed_tasks"`
	QueueDepth     int            `json:"queue_depth"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
	LastSweepAt    time.Time      `json:"last_sweep_at"`
	TasksReclaimed int            `json:"tasks_reclaimed"`
}

// WorkerHealth summarizes one polling goroutine's state.
type WorkerHealth struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"` // "idle" or "working"
	CurrentTaskID  string    `json:"current_task_id,omitempty"`
	TasksProcessed int       `json:"tasks_processed"`
	LastActivity   time.Time `json:"last_activity"`
}
