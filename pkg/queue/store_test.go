package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/database"
	"github.com/turnengine/core/pkg/models"
)

// newTestPool starts a disposable Postgres container with the embedded
// migrations applied, returning a connected pool.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := database.NewClient(ctx, database.Config{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "test",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 2,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client.Pool
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		LeaseDuration:           5 * time.Second,
		BackoffBase:             100 * time.Millisecond,
		BackoffMax:              time.Second,
		MaxAttemptsDefault:      3,
		PollInterval:            10 * time.Millisecond,
		PollIntervalJitter:      5 * time.Millisecond,
		ReclaimSweepInterval:    time.Second,
		GracefulShutdownTimeout: time.Second,
	}
}

func TestStoreEnqueueAndClaim(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()

	task, err := store.Enqueue(ctx, models.EnqueueTaskRequest{
		SessionID: models.NewID(),
		Type:      models.TaskStartTurn,
		Payload:   []byte(`{"turn_ordinal":1}`),
	})
	require.NoError(t, err)
	require.Equal(t, models.TaskPending, task.State)

	claimed, err := store.Claim(ctx, models.ClaimRequest{
		WorkerID:      "w1",
		ActivityTypes: []models.TaskType{models.TaskStartTurn},
		MaxItems:      5,
		LeaseDuration: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, task.ID, claimed[0].ID)
	require.Equal(t, models.TaskClaimed, claimed[0].State)
	require.Equal(t, "w1", claimed[0].LeaseOwner)
}

func TestStoreClaimSkipsLockedRows(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()

	_, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents})
	require.NoError(t, err)

	first, err := store.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 5, LeaseDuration: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := store.Claim(ctx, models.ClaimRequest{
		WorkerID: "w2", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 5, LeaseDuration: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestStoreHeartbeatExtendsLease(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()

	task, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents})
	require.NoError(t, err)
	claimed, err := store.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 1, LeaseDuration: time.Second,
	})
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, store.Heartbeat(ctx, task.ID, "w1", 30*time.Second))
	require.ErrorIs(t, store.Heartbeat(ctx, task.ID, "someone-else", 30*time.Second), ErrLeaseLost)
}

func TestStoreCompleteRequiresLeaseOwnership(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()

	task, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents})
	require.NoError(t, err)
	_, err = store.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 1, LeaseDuration: time.Second,
	})
	require.NoError(t, err)

	require.ErrorIs(t, store.Complete(ctx, task.ID, "wrong-worker"), ErrLeaseLost)
	require.NoError(t, store.Complete(ctx, task.ID, "w1"))
}

func TestStoreFailRetryableReschedules(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()

	task, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents, MaxAttempts: 3})
	require.NoError(t, err)
	_, err = store.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 1, LeaseDuration: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, models.FailRequest{TaskID: task.ID, Error: "boom", Retryable: true}))

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM tasks WHERE id = $1`, task.ID).Scan(&state))
	require.Equal(t, string(models.TaskPending), state)
}

func TestStoreFailExhaustedGoesToDeadLetter(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()

	task, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents, MaxAttempts: 1})
	require.NoError(t, err)
	_, err = store.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 1, LeaseDuration: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, models.FailRequest{TaskID: task.ID, Error: "boom", Retryable: true}))

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM tasks WHERE id = $1`, task.ID).Scan(&state))
	require.Equal(t, string(models.TaskDeadLetter), state)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM dead_letter_entries WHERE task_id = $1`, task.ID).Scan(&count))
	require.Equal(t, 1, count)
}

func TestStoreFailNonRetryableGoesToFailed(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()

	task, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents, MaxAttempts: 5})
	require.NoError(t, err)
	_, err = store.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 1, LeaseDuration: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, models.FailRequest{TaskID: task.ID, Error: "unprocessable", Retryable: false}))

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM tasks WHERE id = $1`, task.ID).Scan(&state))
	require.Equal(t, string(models.TaskFailed), state)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM dead_letter_entries WHERE task_id = $1`, task.ID).Scan(&count))
	require.Equal(t, 0, count)
}

func TestStoreReclaimExpired(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()

	task, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents})
	require.NoError(t, err)
	_, err = store.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 1, LeaseDuration: time.Nanosecond,
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	n, err := store.ReclaimExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM tasks WHERE id = $1`, task.ID).Scan(&state))
	require.Equal(t, string(models.TaskPending), state)
}

func TestStoreEnqueueRejectsSecondInFlightTurnDriver(t *testing.T) {
	pool := newTestPool(t)
	store := NewStore(pool, testQueueConfig())
	ctx := context.Background()
	sessionID := models.NewID()

	_, err := store.Enqueue(ctx, models.EnqueueTaskRequest{SessionID: sessionID, Type: models.TaskStartTurn})
	require.NoError(t, err)

	_, err = store.Enqueue(ctx, models.EnqueueTaskRequest{SessionID: sessionID, Type: models.TaskContinueTurn})
	require.Error(t, err)
}
