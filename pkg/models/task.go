package models

import (
	"encoding/json"
	"time"
)

// TaskState is the lifecycle state of a Task.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskClaimed    TaskState = "claimed"
	TaskSucceeded  TaskState = "succeeded"
	TaskFailed     TaskState = "failed"
	TaskDeadLetter TaskState = "dead_letter"
)

// TaskType is one of the activity types a Task can carry. Workers declare
// which of these they support when registering and claiming.
type TaskType string

const (
	TaskStartTurn    TaskType = "StartTurn"
	TaskContinueTurn TaskType = "ContinueTurn"
	TaskExecuteTool  TaskType = "ExecuteTool"
	TaskCompactEvents TaskType = "CompactEvents"
)

// Task is a queued unit of durable work.
type Task struct {
	ID             string
	SessionID      string // optional; empty for session-less tasks (e.g. CompactEvents sweeps)
	Type           TaskType
	Payload        json.RawMessage
	State          TaskState
	Attempt        int
	MaxAttempts    int
	Priority       int
	ScheduledFor   time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	FinishedAt     *time.Time
	LastError      string
}

// IsTurnDriver reports whether t is one of the two task types the
// partial-uniqueness invariant applies to: at most one in-flight
// StartTurn/ContinueTurn task per session.
func (t TaskType) IsTurnDriver() bool {
	return t == TaskStartTurn || t == TaskContinueTurn
}

// EnqueueTaskRequest is the input to enqueue.
type EnqueueTaskRequest struct {
	SessionID    string
	Type         TaskType
	Payload      json.RawMessage
	MaxAttempts  int
	Priority     int
	ScheduledFor time.Time // zero value means "now"
}

// StartTurnPayload is the Payload of a StartTurn/ContinueTurn task.
type StartTurnPayload struct {
	SessionID   string `json:"session_id"`
	TurnOrdinal int    `json:"turn_ordinal"`
}

// ExecuteToolPayload is the Payload of an ExecuteTool task.
type ExecuteToolPayload struct {
	SessionID   string          `json:"session_id"`
	TurnOrdinal int             `json:"turn_ordinal"`
	ToolCallID  string          `json:"tool_call_id"`
	ToolName    string          `json:"tool_name"`
	Arguments   json.RawMessage `json:"arguments"`
}

// CompactEventsPayload is the Payload of a CompactEvents task.
type CompactEventsPayload struct {
	SessionID string `json:"session_id"`
	// BeforeSequence bounds compaction to stream.delta rows with
	// sequence < BeforeSequence (i.e. strictly preceding the terminal
	// message.agent this sweep follows).
	BeforeSequence int `json:"before_sequence"`
}

// ClaimRequest is the input to claim.
type ClaimRequest struct {
	WorkerID      string
	ActivityTypes []TaskType
	MaxItems      int
	LeaseDuration time.Duration
}

// FailRequest is the input to fail.
type FailRequest struct {
	TaskID    string
	Error     string
	Retryable bool
}
