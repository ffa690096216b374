package eventlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/models"
	"github.com/turnengine/core/pkg/queue"
)

func testRetentionConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		StreamDeltaGracePeriod: 0,
		CompactionInterval:     50 * time.Millisecond,
	}
}

func TestCompactorSweepEnqueuesCompactEventsTask(t *testing.T) {
	pool, _ := newTestPool(t)
	pub := NewPublisher(pool)
	store := NewStore(pool)
	ctx := context.Background()
	sessionID := models.NewID()

	_, err := pub.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventStreamDelta, Data: []byte(`{"delta":"h"}`)})
	require.NoError(t, err)
	_, err = pub.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventStreamDelta, Data: []byte(`{"delta":"i"}`)})
	require.NoError(t, err)
	terminal, err := pub.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventMessageAgent, Data: []byte(`{"content":[]}`)})
	require.NoError(t, err)

	queueCfg := &config.QueueConfig{
		LeaseDuration: time.Second, BackoffBase: time.Millisecond, BackoffMax: time.Second,
		MaxAttemptsDefault: 3, PollInterval: time.Millisecond, PollIntervalJitter: time.Millisecond,
		ReclaimSweepInterval: time.Second, GracefulShutdownTimeout: time.Second,
	}
	taskStore := queue.NewStore(pool, queueCfg)
	compactor := NewCompactor(pool, store, taskStore, testRetentionConfig())

	require.NoError(t, compactor.sweep(ctx))

	pending, err := taskStore.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskCompactEvents},
		MaxItems: 5, LeaseDuration: time.Second,
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	var payload models.CompactEventsPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	require.Equal(t, sessionID, payload.SessionID)
	require.Equal(t, terminal.Sequence, payload.BeforeSequence)
}

func TestCompactorCompactDeletesOnlyStreamDeltaBeforeBoundary(t *testing.T) {
	pool, _ := newTestPool(t)
	pub := NewPublisher(pool)
	store := NewStore(pool)
	ctx := context.Background()
	sessionID := models.NewID()

	_, err := pub.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventStreamDelta, Data: []byte(`{}`)})
	require.NoError(t, err)
	terminal, err := pub.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventMessageAgent, Data: []byte(`{}`)})
	require.NoError(t, err)
	_, err = pub.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventStreamDelta, Data: []byte(`{}`)})
	require.NoError(t, err)

	compactor := NewCompactor(pool, store, nil, testRetentionConfig())
	deleted, err := compactor.Compact(ctx, sessionID, terminal.Sequence)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	remaining, err := store.ListEvents(ctx, sessionID, models.EventFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	for _, e := range remaining {
		if e.Type == models.EventStreamDelta {
			require.Greater(t, e.Sequence, terminal.Sequence)
		}
	}
}
