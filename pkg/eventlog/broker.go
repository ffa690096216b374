package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/turnengine/core/pkg/models"
)

// Broker fans out NOTIFY payloads to per-session SSE subscribers and
// implements Last-Event-ID catch-up by re-reading missed events from
// Store before a subscriber starts receiving the live tail. Subscribers
// are plain buffered channels an HTTP handler drains into a
// text/event-stream response, not long-lived framed connections this
// package owns.
type Broker struct {
	store *Store

	mu   sync.RWMutex
	subs map[string]map[int]*subscription // sessionID -> subscriberID -> sub
	next int
}

// subscription is one SSE client's delivery channel for one session.
type subscription struct {
	id     int
	events chan *models.Event
}

// NewBroker creates a Broker backed by store for catch-up reads.
func NewBroker(store *Store) *Broker {
	return &Broker{
		store: store,
		subs:  make(map[string]map[int]*subscription),
	}
}

// Subscribe registers a new SSE client for sessionID and returns a channel
// of events to stream, plus an unsubscribe func the handler must call when
// the client disconnects. The channel carries only events appended after
// subscription; Catchup replays what is already stored.
func (b *Broker) Subscribe(sessionID string) (<-chan *models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]*subscription)
	}
	b.next++
	id := b.next
	sub := &subscription{id: id, events: make(chan *models.Event, 64)}
	b.subs[sessionID][id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[sessionID]; ok {
			if s, ok := set[id]; ok {
				close(s.events)
				delete(set, id)
			}
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}

	return sub.events, unsubscribe
}

// ActiveChannels reports which session channels currently have at least
// one subscriber, so the listener only LISTENs on channels someone wants.
func (b *Broker) ActiveChannels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	channels := make([]string, 0, len(b.subs))
	for sessionID := range b.subs {
		channels = append(channels, SessionChannel(sessionID))
	}
	return channels
}

// HasSubscribers reports whether sessionID currently has any subscriber.
func (b *Broker) HasSubscribers(sessionID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID]) > 0
}

// Catchup passes each stored event after lastEventSequence for sessionID
// to deliver, in sequence order: every stored event when lastEventSequence
// is 0 (a new SSE client), or the missed tail for a client reconnecting
// with a Last-Event-ID header. It does not deduplicate against the live
// feed; a handler should call this before select-ing on the Subscribe
// channel so the two are ordered.
func (b *Broker) Catchup(ctx context.Context, sessionID string, lastEventSequence int, deliver func(*models.Event)) error {
	events, err := b.store.ListEvents(ctx, sessionID, models.EventFilter{AfterSequence: lastEventSequence})
	if err != nil {
		return err
	}
	for _, e := range events {
		deliver(e)
	}
	return nil
}

// Dispatch implements Dispatcher: it decodes a notifyEnvelope and fans
// the event out to every subscriber of its session. A truncated envelope
// (payload exceeded PostgreSQL's NOTIFY size limit) is delivered with an
// empty Data — subscribers that need the body fall back to ListEvents.
func (b *Broker) Dispatch(channel string, payload []byte) {
	var envelope notifyEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		slog.Error("broker: malformed notify payload", "channel", channel, "error", err)
		return
	}

	event := &models.Event{
		ID:        envelope.EventID,
		SessionID: envelope.SessionID,
		Sequence:  envelope.Sequence,
		Type:      models.EventType(envelope.Type),
		Data:      envelope.Data,
	}

	b.mu.RLock()
	subs := b.subs[envelope.SessionID]
	targets := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.events <- event:
		default:
			slog.Warn("broker: subscriber channel full, dropping event", "session_id", envelope.SessionID, "sequence", envelope.Sequence)
		}
	}
}
