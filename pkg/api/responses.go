package api

import (
	"time"

	"github.com/turnengine/core/pkg/models"
)

// sessionResponse is the wire shape of a Session.
type sessionResponse struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	Title      string     `json:"title,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func newSessionResponse(s *models.Session) sessionResponse {
	return sessionResponse{
		ID: s.ID, AgentID: s.AgentID, Title: s.Title, Tags: s.Tags,
		Status: string(s.Status), CreatedAt: s.CreatedAt,
		StartedAt: s.StartedAt, FinishedAt: s.FinishedAt,
	}
}

// messageResponse is the wire shape of a projected Message.
type messageResponse struct {
	EventID   string               `json:"event_id"`
	SessionID string               `json:"session_id"`
	Sequence  int                  `json:"sequence"`
	Role      string               `json:"role"`
	Content   []models.ContentPart `json:"content"`
	CreatedAt time.Time            `json:"created_at"`
}

func newMessageResponse(m *models.Message) messageResponse {
	return messageResponse{
		EventID: m.EventID, SessionID: m.SessionID, Sequence: m.Sequence,
		Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt,
	}
}

// taskResponse is the wire shape of a Task, returned by the enqueue and
// DLQ-replay endpoints.
type taskResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	Type      string `json:"type"`
	State     string `json:"state"`
	Attempt   int    `json:"attempt"`
}

func newTaskResponse(t *models.Task) taskResponse {
	return taskResponse{ID: t.ID, SessionID: t.SessionID, Type: string(t.Type), State: string(t.State), Attempt: t.Attempt}
}

// healthResponse is the wire shape of the operator health endpoint.
type healthResponse struct {
	Status              string                  `json:"status"`
	TotalCapacity       int                     `json:"total_capacity"`
	TotalLoad           int                     `json:"total_load"`
	WorkersAccepting    int                     `json:"workers_accepting"`
	WorkersTotal        int                     `json:"workers_total"`
	OpenCircuitBreakers []string                `json:"open_circuit_breakers"`
	QueueDepthByType    map[models.TaskType]int `json:"queue_depth_by_type"`
	PendingTasks        int                     `json:"pending_tasks"`
	ClaimedTasks        int                     `json:"claimed_tasks"`
	DeadLetterSize      int                     `json:"dead_letter_size"`
}

func newHealthResponse(h *models.FleetHealth) healthResponse {
	status := "ok"
	if len(h.OpenCircuitBreakers) > 0 || h.WorkersTotal == 0 {
		status = "degraded"
	}
	return healthResponse{
		Status:              status,
		TotalCapacity:       h.TotalCapacity,
		TotalLoad:           h.TotalLoad,
		WorkersAccepting:    h.WorkersAccepting,
		WorkersTotal:        h.WorkersTotal,
		OpenCircuitBreakers: h.OpenCircuitBreakers,
		QueueDepthByType:    h.QueueDepthByType,
		PendingTasks:        h.PendingTasks,
		ClaimedTasks:        h.ClaimedTasks,
		DeadLetterSize:      h.DeadLetterSize,
	}
}

// workerResponse is the wire shape of a Worker.
type workerResponse struct {
	ID                 string   `json:"id"`
	Hostname           string   `json:"hostname"`
	WorkerGroup        string   `json:"worker_group,omitempty"`
	ActivityTypes      []string `json:"activity_types"`
	MaxConcurrency     int      `json:"max_concurrency"`
	CurrentLoad        int      `json:"current_load"`
	AcceptingTasks     bool     `json:"accepting_tasks"`
	BackpressureReason string   `json:"backpressure_reason,omitempty"`
	Status             string   `json:"status"`
}

// deadLetterResponse is the wire shape of a DeadLetterEntry.
type deadLetterResponse struct {
	TaskID    string    `json:"task_id"`
	LastError string    `json:"last_error"`
	MovedAt   time.Time `json:"moved_at"`
}

func newDeadLetterResponse(e *models.DeadLetterEntry) deadLetterResponse {
	return deadLetterResponse{TaskID: e.TaskID, LastError: e.LastError, MovedAt: e.MovedAt}
}

func newWorkerResponse(w *models.Worker) workerResponse {
	types := make([]string, len(w.ActivityTypes))
	for i, t := range w.ActivityTypes {
		types[i] = string(t)
	}
	return workerResponse{
		ID: w.ID, Hostname: w.Hostname, WorkerGroup: w.WorkerGroup,
		ActivityTypes: types, MaxConcurrency: w.MaxConcurrency, CurrentLoad: w.CurrentLoad,
		AcceptingTasks: w.AcceptingTasks, BackpressureReason: string(w.BackpressureReason),
		Status: string(w.Status),
	}
}
