package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turnengine/core/pkg/models"
)

func TestPoolProcessesEnqueuedTask(t *testing.T) {
	pgPool := newTestPool(t)
	cfg := testQueueConfig()
	store := NewStore(pgPool, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents})
	require.NoError(t, err)

	var handled int32
	handler := TaskHandlerFunc(func(ctx context.Context, task *models.Task) error {
		atomic.AddInt32(&handled, 1)
		return nil
	})

	p := NewPool("pool1", pgPool, cfg)
	p.Start(ctx, []WorkerSpec{
		{Handler: handler, ActivityTypes: []models.TaskType{models.TaskCompactEvents}, Concurrency: 2},
	})
	defer p.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&handled) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestPoolHealthReportsQueueDepth(t *testing.T) {
	pgPool := newTestPool(t)
	cfg := testQueueConfig()
	store := NewStore(pgPool, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents})
	require.NoError(t, err)

	p := NewPool("pool1", pgPool, cfg)
	health := p.Health(ctx)
	require.True(t, health.DBReachable)
	require.Equal(t, 1, health.QueueDepth)
}

func TestPoolStopWaitsForInFlightWork(t *testing.T) {
	pgPool := newTestPool(t)
	cfg := testQueueConfig()
	store := NewStore(pgPool, cfg)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, models.EnqueueTaskRequest{Type: models.TaskCompactEvents})
	require.NoError(t, err)

	started := make(chan struct{})
	finished := make(chan struct{})
	handler := TaskHandlerFunc(func(ctx context.Context, task *models.Task) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return nil
	})

	p := NewPool("pool1", pgPool, cfg)
	p.Start(ctx, []WorkerSpec{
		{Handler: handler, ActivityTypes: []models.TaskType{models.TaskCompactEvents}, Concurrency: 1},
	})

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never started the task")
	}

	p.Stop()
	select {
	case <-finished:
	default:
		t.Fatal("pool stopped before in-flight task finished")
	}
}
