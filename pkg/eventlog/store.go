package eventlog

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// Store is the event log's read side: list_events and list_messages.
// Appends go through Publisher, not Store, because an append must also
// pg_notify in the same transaction.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListEvents returns a session's events ordered by sequence, optionally
// filtered to sequences after filter.AfterSequence and to filter.Types.
func (s *Store) ListEvents(ctx context.Context, sessionID string, filter models.EventFilter) ([]*models.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}

	var types []string
	for _, t := range filter.Types {
		types = append(types, string(t))
	}

	const q = `
		SELECT id, session_id, sequence, type, data, created_at
		FROM events
		WHERE session_id = $1 AND sequence > $2 AND ($3::text[] IS NULL OR type = ANY($3))
		ORDER BY sequence ASC
		LIMIT $4
	`
	rows, err := s.pool.Query(ctx, q, sessionID, filter.AfterSequence, nullableStrings(types), limit)
	if err != nil {
		return nil, engineerr.InternalErr("eventlog.ListEvents", "querying events", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Sequence, &typ, &e.Data, &e.CreatedAt); err != nil {
			return nil, engineerr.InternalErr("eventlog.ListEvents", "scanning event", err)
		}
		e.Type = models.EventType(typ)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// ListMessages projects message.user / message.agent events into the
// Message view, ordered by sequence.
func (s *Store) ListMessages(ctx context.Context, sessionID string, afterSequence, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 200
	}

	const q = `
		SELECT id, session_id, sequence, type, data, created_at
		FROM events
		WHERE session_id = $1 AND sequence > $2 AND type IN ('message.user', 'message.agent')
		ORDER BY sequence ASC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, q, sessionID, afterSequence, limit)
	if err != nil {
		return nil, engineerr.InternalErr("eventlog.ListMessages", "querying messages", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var id, typ string
		var sequence int
		var data []byte

		var e models.Event
		if err := rows.Scan(&id, &e.SessionID, &sequence, &typ, &data, &e.CreatedAt); err != nil {
			return nil, engineerr.InternalErr("eventlog.ListMessages", "scanning message event", err)
		}

		var payload models.MessageEventData
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, engineerr.InternalErr("eventlog.ListMessages", "unmarshaling message payload", err)
		}

		role := "agent"
		if models.EventType(typ) == models.EventMessageUser {
			role = "user"
		}

		messages = append(messages, &models.Message{
			EventID:   id,
			SessionID: e.SessionID,
			Sequence:  sequence,
			Role:      role,
			Content:   payload.Content,
			CreatedAt: e.CreatedAt,
		})
	}
	return messages, rows.Err()
}

// LatestSequence returns the highest assigned sequence for a session, or
// 0 if the session has no events yet.
func (s *Store) LatestSequence(ctx context.Context, sessionID string) (int, error) {
	const q = `SELECT COALESCE(MAX(sequence), 0) FROM events WHERE session_id = $1`
	var seq int
	if err := s.pool.QueryRow(ctx, q, sessionID).Scan(&seq); err != nil {
		return 0, engineerr.InternalErr("eventlog.LatestSequence", "querying latest sequence", err)
	}
	return seq, nil
}

// CountToolEvents returns the number of tool.call_started and
// tool.call_completed events for a turn, used by the continuation
// fan-in check.
func (s *Store) CountToolEvents(ctx context.Context, sessionID string, turnOrdinal int) (started, completed int, err error) {
	const q = `
		SELECT
			count(*) FILTER (WHERE type = 'tool.call_started' AND (data->>'turn_ordinal')::int = $2),
			count(*) FILTER (WHERE type = 'tool.call_completed' AND (data->>'turn_ordinal')::int = $2)
		FROM events
		WHERE session_id = $1 AND type IN ('tool.call_started', 'tool.call_completed')
	`
	if scanErr := s.pool.QueryRow(ctx, q, sessionID, turnOrdinal).Scan(&started, &completed); scanErr != nil {
		return 0, 0, engineerr.InternalErr("eventlog.CountToolEvents", "counting tool events", scanErr)
	}
	return started, completed, nil
}

// HasEventOfType reports whether an event of the given type already
// exists whose data field jsonKey equals jsonValue, for replay idempotency
// checks.
func (s *Store) HasEventOfType(ctx context.Context, sessionID string, eventType models.EventType, jsonKey, jsonValue string) (bool, error) {
	const q = `
		SELECT EXISTS(
			SELECT 1 FROM events
			WHERE session_id = $1 AND type = $2 AND data->>$3 = $4
		)
	`
	var exists bool
	if err := s.pool.QueryRow(ctx, q, sessionID, string(eventType), jsonKey, jsonValue).Scan(&exists); err != nil {
		return false, engineerr.InternalErr("eventlog.HasEventOfType", "checking event existence", err)
	}
	return exists, nil
}

func nullableStrings(s []string) interface{} {
	if len(s) == 0 {
		return nil
	}
	return s
}
