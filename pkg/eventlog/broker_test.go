package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turnengine/core/pkg/models"
)

func TestBrokerDispatchFansOutToSubscribers(t *testing.T) {
	broker := NewBroker(nil)
	sessionID := models.NewID()

	events, unsubscribe := broker.Subscribe(sessionID)
	defer unsubscribe()

	require.True(t, broker.HasSubscribers(sessionID))

	payload, err := buildNotifyPayload(&models.Event{
		ID: models.NewID(), SessionID: sessionID, Sequence: 1,
		Type: models.EventTurnStarted, Data: []byte(`{"turn_ordinal":1}`),
	})
	require.NoError(t, err)

	broker.Dispatch(SessionChannel(sessionID), []byte(payload))

	select {
	case e := <-events:
		require.Equal(t, 1, e.Sequence)
		require.Equal(t, models.EventTurnStarted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched event")
	}
}

func TestBrokerDispatchIgnoresOtherSessions(t *testing.T) {
	broker := NewBroker(nil)
	sessionID := models.NewID()
	other := models.NewID()

	events, unsubscribe := broker.Subscribe(sessionID)
	defer unsubscribe()

	payload, err := buildNotifyPayload(&models.Event{
		ID: models.NewID(), SessionID: other, Sequence: 1, Type: models.EventTurnStarted,
	})
	require.NoError(t, err)
	broker.Dispatch(SessionChannel(other), []byte(payload))

	select {
	case <-events:
		t.Fatal("received event meant for a different session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerUnsubscribeClosesChannelAndRemovesSession(t *testing.T) {
	broker := NewBroker(nil)
	sessionID := models.NewID()

	events, unsubscribe := broker.Subscribe(sessionID)
	unsubscribe()

	_, open := <-events
	require.False(t, open)
	require.False(t, broker.HasSubscribers(sessionID))
}

func TestBrokerCatchupReplaysMissedEvents(t *testing.T) {
	pool, _ := newTestPool(t)
	pub := NewPublisher(pool)
	store := NewStore(pool)
	broker := NewBroker(store)
	ctx := context.Background()
	sessionID := models.NewID()

	first, err := pub.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventTurnStarted, Data: []byte(`{}`)})
	require.NoError(t, err)
	second, err := pub.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventTurnCompleted, Data: []byte(`{}`)})
	require.NoError(t, err)

	var replayed []*models.Event
	err = broker.Catchup(ctx, sessionID, 0, func(e *models.Event) { replayed = append(replayed, e) })
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	require.Equal(t, first.Sequence, replayed[0].Sequence)
	require.Equal(t, second.Sequence, replayed[1].Sequence)

	replayed = nil
	err = broker.Catchup(ctx, sessionID, first.Sequence, func(e *models.Event) { replayed = append(replayed, e) })
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	require.Equal(t, second.Sequence, replayed[0].Sequence)
}
