package queue

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// worker is one polling goroutine inside a Pool. It repeatedly claims a
// task of its supported activity types, dispatches it to the registered
// TaskHandler, and runs a heartbeat ticker for the duration of the
// handler call so the lease survives long-running work.
type worker struct {
	id            string
	store         *Store
	handler       TaskHandler
	activityTypes []models.TaskType
	cfg           *config.QueueConfig

	mu             sync.Mutex
	status         string
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

func newWorker(id string, store *Store, handler TaskHandler, activityTypes []models.TaskType, cfg *config.QueueConfig) *worker {
	return &worker{
		id:            id,
		store:         store,
		handler:       handler,
		activityTypes: activityTypes,
		cfg:           cfg,
		status:        "idle",
		lastActivity:  time.Now(),
	}
}

// run polls until ctx is cancelled or stopCh closes.
func (w *worker) run(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		claimed, err := w.store.Claim(ctx, models.ClaimRequest{
			WorkerID:      w.id,
			ActivityTypes: w.activityTypes,
			MaxItems:      1,
			LeaseDuration: w.cfg.LeaseDuration,
		})
		if err != nil {
			slog.Error("worker claim failed", "worker_id", w.id, "error", err)
			if !w.sleep(ctx, stopCh, w.pollInterval()) {
				return
			}
			continue
		}
		if len(claimed) == 0 {
			if !w.sleep(ctx, stopCh, w.pollInterval()) {
				return
			}
			continue
		}

		w.process(ctx, claimed[0])
	}
}

func (w *worker) process(ctx context.Context, task *models.Task) {
	w.mu.Lock()
	w.status = "working"
	w.currentTaskID = task.ID
	w.lastActivity = time.Now()
	w.mu.Unlock()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		w.runHeartbeat(heartbeatCtx, task.ID)
	}()

	err := w.handler.Handle(ctx, task)

	cancelHeartbeat()
	hbWG.Wait()

	if err == nil {
		if cerr := w.store.Complete(ctx, task.ID, w.id); cerr != nil {
			slog.Error("completing task failed", "task_id", task.ID, "worker_id", w.id, "error", cerr)
		}
	} else {
		retryable := engineerr.Retryable(err)
		if ferr := w.store.Fail(ctx, models.FailRequest{TaskID: task.ID, Error: err.Error(), Retryable: retryable}); ferr != nil {
			slog.Error("failing task failed", "task_id", task.ID, "worker_id", w.id, "error", ferr)
		}
	}

	w.mu.Lock()
	w.status = "idle"
	w.currentTaskID = ""
	w.tasksProcessed++
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

func (w *worker) runHeartbeat(ctx context.Context, taskID string) {
	interval := w.cfg.LeaseDuration / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, taskID, w.id, w.cfg.LeaseDuration); err != nil {
				slog.Warn("task heartbeat failed", "task_id", taskID, "worker_id", w.id, "error", err)
				return
			}
		}
	}
}

// pollInterval applies jitter to the configured poll interval so many
// workers polling the same queue don't thunder together.
func (w *worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int64N(int64(2*jitter))) - jitter
}

func (w *worker) sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (w *worker) health() WorkerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         w.status,
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}
