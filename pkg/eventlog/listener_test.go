package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turnengine/core/pkg/models"
)

func TestListenerDeliversNotifyPayload(t *testing.T) {
	pool, cfg := newTestPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	listener := NewListener(cfg.DSN(), DispatcherFunc(func(channel string, payload []byte) {
		received <- channel + ":" + string(payload)
	}))

	require.NoError(t, listener.Start(ctx))
	defer listener.Stop(context.Background())

	channel := SessionChannel(models.NewID())
	require.NoError(t, listener.Subscribe(ctx, channel))

	_, err := pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, "hello")
	require.NoError(t, err)

	select {
	case msg := <-received:
		require.Equal(t, channel+":hello", msg)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestListenerUnsubscribeStopsDelivery(t *testing.T) {
	pool, cfg := newTestPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 4)
	listener := NewListener(cfg.DSN(), DispatcherFunc(func(channel string, payload []byte) {
		received <- string(payload)
	}))

	require.NoError(t, listener.Start(ctx))
	defer listener.Stop(context.Background())

	channel := SessionChannel(models.NewID())
	require.NoError(t, listener.Subscribe(ctx, channel))
	require.NoError(t, listener.Unsubscribe(ctx, channel))

	_, err := pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, "should-not-arrive")
	require.NoError(t, err)

	select {
	case msg := <-received:
		t.Fatalf("received unexpected notification after unsubscribe: %s", msg)
	case <-time.After(500 * time.Millisecond):
	}
}
