package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// postgresUniqueViolation is the SQLSTATE for a unique_violation error,
// raised here by idx_tasks_one_inflight_turn_driver when a caller tries
// to enqueue a second turn-driver task for a session that already has
// one in flight.
const postgresUniqueViolation = "23505"

// Store is the durable task queue's persistence layer: enqueue, claim,
// heartbeat, complete, fail, and reclaim operations against the tasks
// table, all through a shared *pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
	cfg  *config.QueueConfig
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, cfg *config.QueueConfig) *Store {
	return &Store{pool: pool, cfg: cfg}
}

// Enqueue inserts a new pending task.
func (s *Store) Enqueue(ctx context.Context, req models.EnqueueTaskRequest) (*models.Task, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxAttemptsDefault
	}
	scheduledFor := req.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}
	payload := req.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	id := models.NewID()
	var sessionID *string
	if req.SessionID != "" {
		sessionID = &req.SessionID
	}

	const q = `
		INSERT INTO tasks (id, session_id, type, payload, state, max_attempts, priority, scheduled_for)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		RETURNING id, session_id, type, payload, state, attempt, max_attempts, priority,
			scheduled_for, lease_owner, lease_expires_at, created_at, finished_at, last_error
	`
	row := s.pool.QueryRow(ctx, q, id, sessionID, string(req.Type), payload, maxAttempts, req.Priority, scheduledFor)
	task, err := scanTask(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, engineerr.ConflictErr("queue.Enqueue", "an in-flight turn-driver task already exists for this session", err)
		}
		return nil, engineerr.InternalErr("queue.Enqueue", "inserting task", err)
	}
	return task, nil
}

// Claim atomically claims up to req.MaxItems due, pending tasks of the
// requested activity types using SELECT ... FOR UPDATE SKIP LOCKED, sets
// their state to claimed, and assigns a lease.
func (s *Store) Claim(ctx context.Context, req models.ClaimRequest) ([]*models.Task, error) {
	if len(req.ActivityTypes) == 0 {
		return nil, nil
	}
	types := make([]string, len(req.ActivityTypes))
	for i, t := range req.ActivityTypes {
		types[i] = string(t)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, engineerr.InternalErr("queue.Claim", "starting transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const selectQ = `
		SELECT id FROM tasks
		WHERE state = 'pending' AND type = ANY($1) AND scheduled_for <= now()
		ORDER BY priority DESC, scheduled_for ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, selectQ, types, req.MaxItems)
	if err != nil {
		return nil, engineerr.InternalErr("queue.Claim", "selecting claimable tasks", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, engineerr.InternalErr("queue.Claim", "scanning task id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, engineerr.InternalErr("queue.Claim", "iterating claimable tasks", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	leaseExpires := time.Now().Add(req.LeaseDuration)
	const updateQ = `
		UPDATE tasks
		SET state = 'claimed', lease_owner = $1, lease_expires_at = $2, attempt = attempt + 1
		WHERE id = ANY($3)
		RETURNING id, session_id, type, payload, state, attempt, max_attempts, priority,
			scheduled_for, lease_owner, lease_expires_at, created_at, finished_at, last_error
	`
	updRows, err := tx.Query(ctx, updateQ, req.WorkerID, leaseExpires, ids)
	if err != nil {
		return nil, engineerr.InternalErr("queue.Claim", "claiming tasks", err)
	}
	var tasks []*models.Task
	for updRows.Next() {
		task, err := scanTask(updRows)
		if err != nil {
			updRows.Close()
			return nil, engineerr.InternalErr("queue.Claim", "scanning claimed task", err)
		}
		tasks = append(tasks, task)
	}
	updRows.Close()
	if err := updRows.Err(); err != nil {
		return nil, engineerr.InternalErr("queue.Claim", "iterating claimed tasks", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, engineerr.InternalErr("queue.Claim", "committing claim", err)
	}
	return tasks, nil
}

// Heartbeat extends a claimed task's lease. Returns ErrLeaseLost if the
// task is no longer claimed by workerID (e.g. it was reclaimed after its
// lease expired).
func (s *Store) Heartbeat(ctx context.Context, taskID, workerID string, leaseDuration time.Duration) error {
	const q = `
		UPDATE tasks SET lease_expires_at = $1
		WHERE id = $2 AND lease_owner = $3 AND state = 'claimed'
	`
	tag, err := s.pool.Exec(ctx, q, time.Now().Add(leaseDuration), taskID, workerID)
	if err != nil {
		return engineerr.InternalErr("queue.Heartbeat", "extending lease", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.New(engineerr.Conflict, "queue.Heartbeat", "lease no longer held", ErrLeaseLost)
	}
	return nil
}

// Complete marks a claimed task succeeded.
func (s *Store) Complete(ctx context.Context, taskID, workerID string) error {
	const q = `
		UPDATE tasks SET state = 'succeeded', finished_at = now(), lease_owner = '', lease_expires_at = NULL
		WHERE id = $1 AND lease_owner = $2 AND state = 'claimed'
	`
	tag, err := s.pool.Exec(ctx, q, taskID, workerID)
	if err != nil {
		return engineerr.InternalErr("queue.Complete", "completing task", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.New(engineerr.Conflict, "queue.Complete", "lease no longer held", ErrLeaseLost)
	}
	return nil
}

// Fail records a task attempt's failure. If req.Retryable and attempts
// remain, the task is rescheduled with exponential backoff; if
// req.Retryable and attempts are exhausted, it moves to the dead letter
// queue; a failure that is not retryable moves it to failed.
func (s *Store) Fail(ctx context.Context, req models.FailRequest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return engineerr.InternalErr("queue.Fail", "starting transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var attempt, maxAttempts int
	var payload []byte
	const selectQ = `SELECT attempt, max_attempts, payload FROM tasks WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, selectQ, req.TaskID).Scan(&attempt, &maxAttempts, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return engineerr.NotFoundErr("queue.Fail", "task not found", ErrTaskNotFound)
		}
		return engineerr.InternalErr("queue.Fail", "loading task", err)
	}

	switch {
	case req.Retryable && attempt < maxAttempts:
		delay := computeBackoff(s.cfg.BackoffBase, s.cfg.BackoffMax, attempt)
		const retryQ = `
			UPDATE tasks
			SET state = 'pending', scheduled_for = $1, last_error = $2,
			    lease_owner = '', lease_expires_at = NULL
			WHERE id = $3
		`
		if _, err := tx.Exec(ctx, retryQ, time.Now().Add(delay), req.Error, req.TaskID); err != nil {
			return engineerr.InternalErr("queue.Fail", "rescheduling task", err)
		}

	case req.Retryable: // attempts exhausted
		const deadLetterQ = `
			UPDATE tasks
			SET state = 'dead_letter', finished_at = now(), last_error = $1,
			    lease_owner = '', lease_expires_at = NULL
			WHERE id = $2
		`
		if _, err := tx.Exec(ctx, deadLetterQ, req.Error, req.TaskID); err != nil {
			return engineerr.InternalErr("queue.Fail", "dead-lettering task", err)
		}
		const insertDLQ = `
			INSERT INTO dead_letter_entries (task_id, original_payload, last_error)
			VALUES ($1, $2, $3)
			ON CONFLICT (task_id) DO UPDATE SET last_error = EXCLUDED.last_error, moved_at = now()
		`
		if _, err := tx.Exec(ctx, insertDLQ, req.TaskID, payload, req.Error); err != nil {
			return engineerr.InternalErr("queue.Fail", "recording dead letter entry", err)
		}

	default: // non-retryable, terminal immediately per spec's state machine
		const failQ = `
			UPDATE tasks
			SET state = 'failed', finished_at = now(), last_error = $1,
			    lease_owner = '', lease_expires_at = NULL
			WHERE id = $2
		`
		if _, err := tx.Exec(ctx, failQ, req.Error, req.TaskID); err != nil {
			return engineerr.InternalErr("queue.Fail", "failing task", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return engineerr.InternalErr("queue.Fail", "committing failure", err)
	}
	return nil
}

// ReclaimExpired resets tasks whose lease has expired back to pending,
// so another worker can claim them. It returns the number reclaimed.
func (s *Store) ReclaimExpired(ctx context.Context) (int, error) {
	const q = `
		UPDATE tasks
		SET state = 'pending', lease_owner = '', lease_expires_at = NULL
		WHERE state = 'claimed' AND lease_expires_at < now()
	`
	tag, err := s.pool.Exec(ctx, q)
	if err != nil {
		return 0, engineerr.InternalErr("queue.ReclaimExpired", "reclaiming expired leases", err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		slog.Info("reclaimed expired task leases", "count", n)
	}
	return n, nil
}

// QueueDepthByType counts pending tasks grouped by type, for FleetHealth.
func (s *Store) QueueDepthByType(ctx context.Context) (map[models.TaskType]int, error) {
	const q = `SELECT type, count(*) FROM tasks WHERE state = 'pending' GROUP BY type`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, engineerr.InternalErr("queue.QueueDepthByType", "querying queue depth", err)
	}
	defer rows.Close()

	depth := make(map[models.TaskType]int)
	for rows.Next() {
		var t string
		var count int
		if err := rows.Scan(&t, &count); err != nil {
			return nil, engineerr.InternalErr("queue.QueueDepthByType", "scanning queue depth row", err)
		}
		depth[models.TaskType(t)] = count
	}
	return depth, rows.Err()
}

// CountByState counts tasks by state, for FleetHealth's pending/claimed
// summary and the DLQ size.
func (s *Store) CountByState(ctx context.Context, state models.TaskState) (int, error) {
	const q = `SELECT count(*) FROM tasks WHERE state = $1`
	var count int
	if err := s.pool.QueryRow(ctx, q, string(state)).Scan(&count); err != nil {
		return 0, engineerr.InternalErr("queue.CountByState", "counting tasks", err)
	}
	return count, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	var sessionID *string
	var taskType, state, leaseOwner, lastError string
	var payload []byte
	var leaseExpiresAt *time.Time
	var finishedAt *time.Time

	if err := row.Scan(&t.ID, &sessionID, &taskType, &payload, &state, &t.Attempt, &t.MaxAttempts,
		&t.Priority, &t.ScheduledFor, &leaseOwner, &leaseExpiresAt, &t.CreatedAt, &finishedAt, &lastError); err != nil {
		return nil, err
	}

	if sessionID != nil {
		t.SessionID = *sessionID
	}
	t.Type = models.TaskType(taskType)
	t.Payload = payload
	t.State = models.TaskState(state)
	t.LeaseOwner = leaseOwner
	t.LeaseExpiresAt = leaseExpiresAt
	t.FinishedAt = finishedAt
	t.LastError = lastError
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}
