// Package session persists the Session entity: creation, lookup, listing,
// and the status transitions the turn loop drives as a conversation moves
// between pending, running, idle, and failed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// Store is the session persistence layer.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new session in the pending state.
func (s *Store) Create(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	if req.AgentID == "" {
		return nil, engineerr.Invalid("session.Create", "agent_id is required", nil)
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, engineerr.InternalErr("session.Create", "marshaling tags", err)
	}

	const q = `
		INSERT INTO sessions (id, agent_id, title, tags, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, agent_id, title, tags, status, created_at, started_at, finished_at
	`
	id := models.NewID()
	row := s.pool.QueryRow(ctx, q, id, req.AgentID, req.Title, tagsJSON)
	return scanSession(row)
}

// Get looks up a session by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	const q = `
		SELECT id, agent_id, title, tags, status, created_at, started_at, finished_at
		FROM sessions WHERE id = $1
	`
	session, err := scanSession(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, engineerr.NotFoundErr("session.Get", "session not found", err)
		}
		return nil, err
	}
	return session, nil
}

// List returns sessions matching filters, newest first.
func (s *Store) List(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT id, agent_id, title, tags, status, created_at, started_at, finished_at
		FROM sessions
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR agent_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.pool.Query(ctx, q, string(filters.Status), filters.AgentID, limit, filters.Offset)
	if err != nil {
		return nil, engineerr.InternalErr("session.List", "querying sessions", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// TransitionStatus moves a session to next, validated against
// models.SessionStatus.CanTransitionTo, and stamps started_at/finished_at
// as appropriate. It is a no-op (not an error) if the session is already
// in the target state, so a replayed Finish/Fail transition is idempotent.
func (s *Store) TransitionStatus(ctx context.Context, id string, next models.SessionStatus) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == next {
		return nil
	}
	if !current.Status.CanTransitionTo(next) {
		return engineerr.ConflictErr("session.TransitionStatus",
			"invalid session status transition: "+string(current.Status)+" -> "+string(next), nil)
	}

	var startedAt, finishedAt *time.Time
	if next == models.SessionRunning && current.StartedAt == nil {
		now := time.Now()
		startedAt = &now
	}
	if next == models.SessionFailed {
		now := time.Now()
		finishedAt = &now
	}

	const q = `
		UPDATE sessions
		SET status = $2,
			started_at = COALESCE($3, started_at),
			finished_at = COALESCE($4, finished_at)
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, id, string(next), startedAt, finishedAt)
	if err != nil {
		return engineerr.InternalErr("session.TransitionStatus", "updating session status", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.NotFoundErr("session.TransitionStatus", "session not found", nil)
	}
	return nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var sess models.Session
	var tags []byte
	var status string
	if err := row.Scan(&sess.ID, &sess.AgentID, &sess.Title, &tags, &status,
		&sess.CreatedAt, &sess.StartedAt, &sess.FinishedAt); err != nil {
		return nil, engineerr.InternalErr("session.scanSession", "scanning session row", err)
	}
	if err := json.Unmarshal(tags, &sess.Tags); err != nil {
		return nil, engineerr.InternalErr("session.scanSession", "unmarshaling tags", err)
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}
