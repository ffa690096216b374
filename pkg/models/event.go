package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is one of the closed set of event types a session's log may
// contain.
type EventType string

const (
	EventMessageUser  EventType = "message.user"
	EventMessageAgent EventType = "message.agent"

	EventTurnStarted   EventType = "turn.started"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnFailed    EventType = "turn.failed"

	EventToolCallStarted   EventType = "tool.call_started"
	EventToolCallCompleted EventType = "tool.call_completed"

	// EventStreamDelta is optional and transient: an assistant text
	// fragment for SSE, compactable once the final message.agent lands.
	EventStreamDelta EventType = "stream.delta"

	// EventTaskDeadLettered is a telemetry event emitted alongside a
	// task's move to the dead-letter queue.
	EventTaskDeadLettered EventType = "task.dead_lettered"
)

// IsMessageType reports whether t is one of the message.* event types that
// list_messages projects over.
func (t EventType) IsMessageType() bool {
	return t == EventMessageUser || t == EventMessageAgent
}

// Event is a per-session, append-only, immutable record. Sequence is a
// dense monotone integer assigned atomically within the session — see
// pkg/eventlog's append_event implementation.
type Event struct {
	ID        string
	SessionID string
	Sequence  int
	Type      EventType
	Data      json.RawMessage
	CreatedAt time.Time
}

// ContentPartKind discriminates the union type stored in a message's
// content list.
type ContentPartKind string

const (
	ContentText       ContentPartKind = "text"
	ContentToolCall   ContentPartKind = "tool_call"
	ContentToolResult ContentPartKind = "tool_result"
)

// ContentPart is one element of a message's ordered content list. Only the
// fields relevant to Kind are populated; the others are zero.
type ContentPart struct {
	Kind ContentPartKind `json:"kind"`

	// ContentText
	Text string `json:"text,omitempty"`

	// ContentToolCall
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`

	// ContentToolResult
	Result    json.RawMessage `json:"result,omitempty"`
	ResultErr string          `json:"result_error,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// MessageEventData is the Data payload of a message.user / message.agent
// event. TurnOrdinal/AttemptOrdinal are zero for message.user (there is no
// replay concern on the inbound side); message.agent sets both and derives
// IdempotencyKey from them so InvokeModel's replay check can test a
// single data->>'idempotency_key' equality instead of a two-column match.
type MessageEventData struct {
	Content        []ContentPart `json:"content"`
	TurnOrdinal    int           `json:"turn_ordinal,omitempty"`
	AttemptOrdinal int           `json:"attempt_ordinal,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// AgentMessageIdempotencyKey builds the key InvokeModel stamps onto a
// message.agent event and later checks for before re-invoking the model.
func AgentMessageIdempotencyKey(turnOrdinal, attemptOrdinal int) string {
	return fmt.Sprintf("%d:%d", turnOrdinal, attemptOrdinal)
}

// TurnStartedData is the Data payload of a turn.started event.
type TurnStartedData struct {
	TurnOrdinal int `json:"turn_ordinal"`
}

// TurnCompletedData is the Data payload of a turn.completed event.
type TurnCompletedData struct {
	TurnOrdinal int `json:"turn_ordinal"`
}

// FailureKind enumerates why a turn failed.
type FailureKind string

const (
	FailureIterationLimit FailureKind = "iteration_limit"
	FailureTimeout        FailureKind = "timeout"
	FailureModelError     FailureKind = "model_error"
	FailureCancelled      FailureKind = "cancelled"
	FailureInternal       FailureKind = "internal"
)

// TurnFailedData is the Data payload of a turn.failed event.
type TurnFailedData struct {
	TurnOrdinal int         `json:"turn_ordinal"`
	Kind        FailureKind `json:"kind"`
	Message     string      `json:"message,omitempty"`
}

// ToolCallStartedData is the Data payload of a tool.call_started event.
type ToolCallStartedData struct {
	TurnOrdinal int             `json:"turn_ordinal"`
	ToolCallID  string          `json:"tool_call_id"`
	ToolName    string          `json:"tool_name"`
	Arguments   json.RawMessage `json:"arguments"`
}

// ToolCallCompletedData is the Data payload of a tool.call_completed event.
type ToolCallCompletedData struct {
	TurnOrdinal int             `json:"turn_ordinal"`
	ToolCallID  string          `json:"tool_call_id"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	IsError     bool            `json:"is_error,omitempty"`
}

// StreamDeltaData is the Data payload of a stream.delta event.
type StreamDeltaData struct {
	TurnOrdinal int    `json:"turn_ordinal"`
	Delta       string `json:"delta"`
}

// AppendEventRequest is the input to append_event.
type AppendEventRequest struct {
	SessionID string
	Type      EventType
	Data      json.RawMessage
}

// EventFilter narrows list_events / subscribe.
type EventFilter struct {
	AfterSequence int
	Types         []EventType
	Limit         int
}

// Message is the projected view of a message.user / message.agent event,
// used by list_messages.
type Message struct {
	EventID   string
	SessionID string
	Sequence  int
	Role      string // "user" or "agent"
	Content   []ContentPart
	CreatedAt time.Time
}
