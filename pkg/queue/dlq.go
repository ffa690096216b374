package queue

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// DeadLetterStore lists and replays dead-lettered tasks, backing the
// operator replay-DLQ operation. Entries are never deleted here; Replay
// re-enqueues a fresh pending task and leaves the original entry in
// place as the permanent record.
type DeadLetterStore struct {
	pool  *pgxpool.Pool
	tasks *Store
}

// NewDeadLetterStore creates a DeadLetterStore.
func NewDeadLetterStore(pool *pgxpool.Pool, cfg *config.QueueConfig) *DeadLetterStore {
	return &DeadLetterStore{pool: pool, tasks: NewStore(pool, cfg)}
}

// List returns dead letter entries ordered most-recent first, up to
// limit.
func (d *DeadLetterStore) List(ctx context.Context, limit int) ([]*models.DeadLetterEntry, error) {
	const q = `
		SELECT task_id, original_payload, last_error, moved_at
		FROM dead_letter_entries
		ORDER BY moved_at DESC
		LIMIT $1
	`
	rows, err := d.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, engineerr.InternalErr("queue.DeadLetterStore.List", "listing dead letter entries", err)
	}
	defer rows.Close()

	var entries []*models.DeadLetterEntry
	for rows.Next() {
		var e models.DeadLetterEntry
		if err := rows.Scan(&e.TaskID, &e.OriginalPayload, &e.LastError, &e.MovedAt); err != nil {
			return nil, engineerr.InternalErr("queue.DeadLetterStore.List", "scanning dead letter entry", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Replay re-enqueues a new pending task carrying the dead-lettered
// task's original session, type, and payload, with a fresh attempt
// counter. It returns the new task.
func (d *DeadLetterStore) Replay(ctx context.Context, taskID string) (*models.Task, error) {
	var sessionID *string
	var taskType string
	var payload []byte
	var maxAttempts, priority int

	const selectQ = `
		SELECT t.session_id, t.type, d.original_payload, t.max_attempts, t.priority
		FROM dead_letter_entries d
		JOIN tasks t ON t.id = d.task_id
		WHERE d.task_id = $1
	`
	err := d.pool.QueryRow(ctx, selectQ, taskID).Scan(&sessionID, &taskType, &payload, &maxAttempts, &priority)
	if err != nil {
		return nil, engineerr.NotFoundErr("queue.DeadLetterStore.Replay", "dead letter entry not found", ErrTaskNotFound)
	}

	req := models.EnqueueTaskRequest{
		Type:         models.TaskType(taskType),
		Payload:      payload,
		MaxAttempts:  maxAttempts,
		Priority:     priority,
		ScheduledFor: time.Now(),
	}
	if sessionID != nil {
		req.SessionID = *sessionID
	}

	return d.tasks.Enqueue(ctx, req)
}
