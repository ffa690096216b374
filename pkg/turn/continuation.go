package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// ToolHandler executes claimed ExecuteTool tasks and drives the
// continuation fan-in: it implements queue.TaskHandler and is registered
// against the ExecuteTool activity type, separately from Runtime's
// StartTurn/ContinueTurn registration, since a worker process may claim
// either independently.
type ToolHandler struct {
	events    eventCounter
	publisher appender
	queue     enqueuer
	tools     ToolRegistry
	fs        FSProvider
	logger    *slog.Logger
}

// eventCounter and appender are the narrow *eventlog.Store/*eventlog.Publisher
// slices ToolHandler needs.
type eventCounter interface {
	HasEventOfType(ctx context.Context, sessionID string, eventType models.EventType, jsonKey, jsonValue string) (bool, error)
	CountToolEvents(ctx context.Context, sessionID string, turnOrdinal int) (started, completed int, err error)
}

type appender interface {
	Append(ctx context.Context, req models.AppendEventRequest) (*models.Event, error)
}

// NewToolHandler builds a ToolHandler. fs resolves each session's
// VirtualFS; logger is passed through to each tool call's SessionContext.
func NewToolHandler(events eventCounter, publisher appender, queue enqueuer, tools ToolRegistry, fs FSProvider, logger *slog.Logger) *ToolHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolHandler{events: events, publisher: publisher, queue: queue, tools: tools, fs: fs, logger: logger}
}

// Handle executes one ExecuteTool task, records its outcome as a
// tool.call_completed event, and — if this was the last outstanding call
// for the turn — enqueues the turn's ContinueTurn task.
func (h *ToolHandler) Handle(ctx context.Context, task *models.Task) error {
	var payload models.ExecuteToolPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return engineerr.PermanentErr("turn.ToolHandler", "unmarshaling ExecuteTool payload", err)
	}

	already, err := h.events.HasEventOfType(ctx, payload.SessionID, models.EventToolCallCompleted, "tool_call_id", payload.ToolCallID)
	if err != nil {
		return engineerr.InternalErr("turn.ToolHandler", "checking tool completion idempotency", err)
	}
	if already {
		return nil
	}

	result, toolErr := h.execute(ctx, payload)

	lastAttempt := task.Attempt >= task.MaxAttempts
	var execErr *ToolExecutorError
	if toolErr != nil && errors.As(toolErr, &execErr) && execErr.Kind == ToolErrTransient && !lastAttempt {
		return engineerr.TransientErr("turn.ToolHandler", execErr.Message, execErr)
	}

	completedData := models.ToolCallCompletedData{TurnOrdinal: payload.TurnOrdinal, ToolCallID: payload.ToolCallID}
	if toolErr != nil {
		completedData.IsError = true
		completedData.Error = toolErr.Error()
	} else {
		completedData.Result = result
	}

	data, err := json.Marshal(completedData)
	if err != nil {
		return fmt.Errorf("turn: marshaling tool.call_completed payload: %w", err)
	}
	if _, err := h.publisher.Append(ctx, models.AppendEventRequest{
		SessionID: payload.SessionID, Type: models.EventToolCallCompleted, Data: data,
	}); err != nil {
		return engineerr.InternalErr("turn.ToolHandler", "appending tool.call_completed", err)
	}

	return h.maybeContinue(ctx, payload.SessionID, payload.TurnOrdinal)
}

func (h *ToolHandler) execute(ctx context.Context, payload models.ExecuteToolPayload) (json.RawMessage, error) {
	tool, ok := h.tools.Get(payload.ToolName)
	if !ok {
		return nil, &ToolExecutorError{Kind: ToolErrInvalidArguments, Message: "unknown tool: " + payload.ToolName}
	}
	var fs VirtualFS
	if h.fs != nil {
		fs = h.fs.FS(payload.SessionID)
	}
	sessionCtx := SessionContext{
		SessionID: payload.SessionID,
		Now:       time.Now,
		FS:        fs,
		Logger:    h.logger,
	}
	return tool.Execute(ctx, sessionCtx, payload.Arguments)
}

// maybeContinue checks the continuation fan-in condition — count(started)
// == count(completed) for the turn — and enqueues ContinueTurn if it
// holds. Multiple concurrent observers may see equality simultaneously;
// the partial unique index on (session_id) WHERE type IN
// ('StartTurn','ContinueTurn') AND state IN ('pending','claimed')
// guarantees only the first Enqueue succeeds, so a resulting Conflict
// error here is expected and not itself a failure.
func (h *ToolHandler) maybeContinue(ctx context.Context, sessionID string, turnOrdinal int) error {
	started, completed, err := h.events.CountToolEvents(ctx, sessionID, turnOrdinal)
	if err != nil {
		return engineerr.InternalErr("turn.maybeContinue", "counting tool events", err)
	}
	if started == 0 || started != completed {
		return nil
	}

	payload, err := json.Marshal(models.StartTurnPayload{SessionID: sessionID, TurnOrdinal: turnOrdinal})
	if err != nil {
		return fmt.Errorf("turn: marshaling ContinueTurn payload: %w", err)
	}
	_, err = h.queue.Enqueue(ctx, models.EnqueueTaskRequest{
		SessionID: sessionID, Type: models.TaskContinueTurn, Payload: payload, MaxAttempts: 3,
	})
	if err != nil && engineerr.ClassOf(err) != engineerr.Conflict {
		return engineerr.InternalErr("turn.maybeContinue", "enqueuing ContinueTurn task", err)
	}
	return nil
}
