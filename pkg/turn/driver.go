// Package turn implements the turn loop runtime: the state machine a
// worker runs when it claims a StartTurn or ContinueTurn task, driving a
// session's conversation through Load/Plan/InvokeModel/DispatchTools/
// AwaitTools/Continue/Finish/Fail.
package turn

import (
	"context"
	"encoding/json"
	"time"
)

// Role identifies the speaker of a message in a ChatRequest.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one entry in a ChatRequest's message history, built from
// the session's reconstructed event log.
type ChatMessage struct {
	Role    Role
	Content []ChatContentPart
}

// ChatContentPartKind mirrors models.ContentPartKind for the subset a
// ModelDriver needs to see.
type ChatContentPartKind string

const (
	ChatContentText       ChatContentPartKind = "text"
	ChatContentToolCall   ChatContentPartKind = "tool_call"
	ChatContentToolResult ChatContentPartKind = "tool_result"
)

// ChatContentPart is one part of a ChatMessage's ordered content list.
type ChatContentPart struct {
	Kind ChatContentPartKind

	Text string // ChatContentText

	ToolCallID string          // ChatContentToolCall / ChatContentToolResult
	ToolName   string          // ChatContentToolCall
	Arguments  json.RawMessage // ChatContentToolCall

	Result  json.RawMessage // ChatContentToolResult
	IsError bool            // ChatContentToolResult
}

// ToolSchema describes one tool the model may call, per ToolExecutor's
// describe().
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// ChatRequest is the input to ModelDriver.Chat.
type ChatRequest struct {
	Model           string
	Messages        []ChatMessage
	Tools           []ToolSchema
	Temperature     *float64
	ReasoningEffort string // optional; buildChatRequest leaves it empty and the drivers in pkg/modeldriver do not read it
}

// ChatDelta is one streamed fragment of the assistant's response, appended
// as a stream.delta event as it arrives.
type ChatDelta struct {
	Text string
}

// ChatResult is the final, complete assistant response once streaming
// finishes, committed as a message.agent event.
type ChatResult struct {
	Content []ChatContentPart

	InputTokens  int
	OutputTokens int
}

// ModelDriverErrorKind classifies a ModelDriver failure.
type ModelDriverErrorKind string

const (
	ModelErrRateLimited   ModelDriverErrorKind = "rate_limited"
	ModelErrTimeout       ModelDriverErrorKind = "timeout"
	ModelErrServerError   ModelDriverErrorKind = "server_error"
	ModelErrBadRequest    ModelDriverErrorKind = "bad_request"
	ModelErrAuthError     ModelDriverErrorKind = "auth_error"
	ModelErrContentFilter ModelDriverErrorKind = "content_filter"
)

// Retryable reports whether a model driver error of this kind should be
// retried (rate limits, timeouts, and server errors are transient; bad
// requests, auth failures, and content filtering are not).
func (k ModelDriverErrorKind) Retryable() bool {
	switch k {
	case ModelErrRateLimited, ModelErrTimeout, ModelErrServerError:
		return true
	default:
		return false
	}
}

// ModelDriverError wraps a provider failure with its classification.
type ModelDriverError struct {
	Kind    ModelDriverErrorKind
	Message string
	Cause   error
}

func (e *ModelDriverError) Error() string { return string(e.Kind) + ": " + e.Message }
func (e *ModelDriverError) Unwrap() error { return e.Cause }

// ModelDriver is the capability set InvokeModel calls against. Chat
// streams deltas to onDelta as they arrive and returns the final
// assembled result once the model finishes; onDelta may be called zero
// or more times before Chat returns.
type ModelDriver interface {
	Chat(ctx context.Context, req ChatRequest, onDelta func(ChatDelta)) (*ChatResult, error)
}

// ToolExecutorErrorKind classifies a ToolExecutor failure.
type ToolExecutorErrorKind string

const (
	ToolErrInvalidArguments ToolExecutorErrorKind = "invalid_arguments"
	ToolErrTransient        ToolExecutorErrorKind = "transient"
	ToolErrPermanent        ToolExecutorErrorKind = "permanent"
)

// ToolExecutorError wraps a tool execution failure with its classification.
type ToolExecutorError struct {
	Kind    ToolExecutorErrorKind
	Message string
	Cause   error
}

func (e *ToolExecutorError) Error() string { return string(e.Kind) + ": " + e.Message }
func (e *ToolExecutorError) Unwrap() error { return e.Cause }

// SessionContext is what session_ctx exposes to a tool execution: the
// session id, a virtual-filesystem handle, a current-time oracle so tool
// code stays deterministic under test, and a logger.
type SessionContext struct {
	SessionID string
	Now       func() time.Time
	FS        VirtualFS
	Logger    Logger
}

// VirtualFS is the narrow filesystem surface a tool execution may use.
// Concrete implementations live in pkg/toolexecutor.
type VirtualFS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

// FSProvider resolves a session id to the VirtualFS its tool calls share,
// keeping ToolHandler decoupled from any one VirtualFS implementation.
type FSProvider interface {
	FS(sessionID string) VirtualFS
}

// Logger is the narrow structured-logging surface passed into a tool
// execution, satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ToolExecutor is the capability set DispatchTools/the ExecuteTool task
// handler calls against.
type ToolExecutor interface {
	Describe() ToolSchema
	Execute(ctx context.Context, sessionCtx SessionContext, arguments json.RawMessage) (json.RawMessage, error)
}

// ToolRegistry resolves a tool name to its executor, the composition point
// between an agent's enabled capabilities and the tools a turn can call.
type ToolRegistry interface {
	Get(name string) (ToolExecutor, bool)
	Schemas(names []string) []ToolSchema
}
