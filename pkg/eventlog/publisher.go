package eventlog

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// notifyByteLimit is PostgreSQL's NOTIFY payload ceiling (8000 bytes);
// truncation below this keeps headroom for the envelope wrapper.
const notifyByteLimit = 7900

// Publisher is the event log's write side: append_event, which persists
// a new event and pg_notifies its session channel atomically in the same
// transaction (pg_notify is transactional — the NOTIFY is held until
// COMMIT, so subscribers never see a notification for an event that
// didn't actually commit).
type Publisher struct {
	pool *pgxpool.Pool
}

// NewPublisher creates a Publisher.
func NewPublisher(pool *pgxpool.Pool) *Publisher {
	return &Publisher{pool: pool}
}

// Append persists req as the next event in its session and notifies
// SessionChannel(req.SessionID). It returns the assigned sequence and
// event id.
func (p *Publisher) Append(ctx context.Context, req models.AppendEventRequest) (*models.Event, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, engineerr.InternalErr("eventlog.Append", "starting transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize concurrent appends to the same session with a transaction-scoped
	// advisory lock so the max(sequence)+1 computation below can't race another
	// append and collide on the unique (session_id, sequence) constraint.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.SessionID); err != nil {
		return nil, engineerr.InternalErr("eventlog.Append", "acquiring session append lock", err)
	}

	id := models.NewID()
	data := req.Data
	if data == nil {
		data = json.RawMessage("{}")
	}

	const insertQ = `
		INSERT INTO events (id, session_id, sequence, type, data)
		VALUES ($1, $2, COALESCE((SELECT max(sequence) FROM events WHERE session_id = $2), 0) + 1, $3, $4)
		RETURNING sequence, created_at
	`
	var event models.Event
	event.ID = id
	event.SessionID = req.SessionID
	event.Type = req.Type
	event.Data = data

	if err := tx.QueryRow(ctx, insertQ, id, req.SessionID, string(req.Type), data).Scan(&event.Sequence, &event.CreatedAt); err != nil {
		return nil, engineerr.InternalErr("eventlog.Append", "inserting event", err)
	}

	notifyPayload, err := buildNotifyPayload(&event)
	if err != nil {
		return nil, engineerr.InternalErr("eventlog.Append", "building notify payload", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, SessionChannel(req.SessionID), notifyPayload); err != nil {
		return nil, engineerr.InternalErr("eventlog.Append", "pg_notify", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, engineerr.InternalErr("eventlog.Append", "committing append", err)
	}

	return &event, nil
}

// notifyEnvelope is the JSON shape delivered over NOTIFY — a thin
// routing header plus the event body, truncated if it would otherwise
// exceed PostgreSQL's NOTIFY payload limit.
type notifyEnvelope struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Sequence  int             `json:"sequence"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

func buildNotifyPayload(e *models.Event) (string, error) {
	full := notifyEnvelope{
		EventID:   e.ID,
		SessionID: e.SessionID,
		Sequence:  e.Sequence,
		Type:      string(e.Type),
		Data:      e.Data,
	}
	bytes, err := json.Marshal(full)
	if err != nil {
		return "", err
	}
	if len(bytes) <= notifyByteLimit {
		return string(bytes), nil
	}

	truncated := notifyEnvelope{
		EventID:   e.ID,
		SessionID: e.SessionID,
		Sequence:  e.Sequence,
		Type:      string(e.Type),
		Truncated: true,
	}
	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", err
	}
	return string(truncBytes), nil
}
