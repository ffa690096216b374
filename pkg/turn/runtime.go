package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/eventlog"
	"github.com/turnengine/core/pkg/models"
	"github.com/turnengine/core/pkg/session"
)

// DriverFactory resolves an agent's configured model provider to a
// ModelDriver instance, the seam pkg/modeldriver's Anthropic/OpenAI
// adapters plug into.
type DriverFactory interface {
	Driver(provider *config.ModelProviderConfig) (ModelDriver, error)
}

// Runtime is the turn loop state machine: it implements queue.TaskHandler
// and is registered against the StartTurn and ContinueTurn activity types.
type Runtime struct {
	sessions  *session.Store
	events    *eventlog.Store
	publisher *eventlog.Publisher
	queue     enqueuer
	agents    *config.AgentRegistry
	providers *config.ModelProviderRegistry
	drivers   DriverFactory
	tools     ToolRegistry
	logger    *slog.Logger
}

// enqueuer is the narrow slice of *queue.Store Runtime needs, so this
// package doesn't have to import pkg/queue's write surface wholesale.
type enqueuer interface {
	Enqueue(ctx context.Context, req models.EnqueueTaskRequest) (*models.Task, error)
}

// NewRuntime builds a Runtime.
func NewRuntime(
	sessions *session.Store,
	events *eventlog.Store,
	publisher *eventlog.Publisher,
	queue enqueuer,
	agents *config.AgentRegistry,
	providers *config.ModelProviderRegistry,
	drivers DriverFactory,
	tools ToolRegistry,
	logger *slog.Logger,
) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		sessions: sessions, events: events, publisher: publisher, queue: queue,
		agents: agents, providers: providers, drivers: drivers, tools: tools, logger: logger,
	}
}

// Handle runs one Load/Plan/InvokeModel/DispatchTools (or Finish/Fail)
// cycle for a claimed StartTurn or ContinueTurn task.
func (r *Runtime) Handle(ctx context.Context, task *models.Task) error {
	var payload models.StartTurnPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return engineerr.PermanentErr("turn.Handle", "unmarshaling turn payload", err)
	}

	sess, err := r.sessions.Get(ctx, payload.SessionID)
	if err != nil {
		return err
	}
	agent, lookupErr := r.agents.Get(sess.AgentID)
	if lookupErr != nil {
		return engineerr.PermanentErr("turn.Handle", "resolving agent config", lookupErr)
	}
	provider, lookupErr := r.providers.Get(agent.ModelProvider)
	if lookupErr != nil {
		return engineerr.PermanentErr("turn.Handle", "resolving model provider", lookupErr)
	}

	// A replayed task for a turn that already finished or failed is a no-op.
	for _, terminal := range []models.EventType{models.EventTurnCompleted, models.EventTurnFailed} {
		done, err := r.events.HasEventOfType(ctx, sess.ID, terminal, "turn_ordinal", fmt.Sprint(payload.TurnOrdinal))
		if err != nil {
			return engineerr.InternalErr("turn.Handle", "checking for a terminal turn event", err)
		}
		if done {
			return nil
		}
	}

	if err := r.sessions.TransitionStatus(ctx, sess.ID, models.SessionRunning); err != nil {
		return engineerr.InternalErr("turn.Handle", "transitioning session to running", err)
	}

	events, err := r.events.ListEvents(ctx, sess.ID, models.EventFilter{})
	if err != nil {
		return engineerr.InternalErr("turn.Handle", "loading session events", err)
	}

	turnOrdinal := payload.TurnOrdinal
	if !hasTurnStarted(events, turnOrdinal) {
		data, _ := json.Marshal(models.TurnStartedData{TurnOrdinal: turnOrdinal})
		startedEvent, err := r.publisher.Append(ctx, models.AppendEventRequest{
			SessionID: sess.ID, Type: models.EventTurnStarted, Data: data,
		})
		if err != nil {
			return engineerr.InternalErr("turn.Handle", "emitting turn.started", err)
		}
		events = append(events, startedEvent)
	}

	if exceeded, wallErr := r.wallTimeExceeded(events, turnOrdinal, agent.MaxWallTime); wallErr != nil {
		return wallErr
	} else if exceeded {
		return r.fail(ctx, sess.ID, turnOrdinal, models.FailureTimeout, "turn exceeded max_wall_time")
	}

	attemptOrdinal := turnAttemptOrdinal(events, turnOrdinal)
	if agent.MaxIterations > 0 && attemptOrdinal >= agent.MaxIterations {
		return r.fail(ctx, sess.ID, turnOrdinal, models.FailureIterationLimit, "turn exceeded max_iterations")
	}

	history, err := buildMessages(events)
	if err != nil {
		return engineerr.InternalErr("turn.Handle", "reconstructing message history", err)
	}

	idempotencyKey := models.AgentMessageIdempotencyKey(turnOrdinal, attemptOrdinal)
	already, err := r.events.HasEventOfType(ctx, sess.ID, models.EventMessageAgent, "idempotency_key", idempotencyKey)
	if err != nil {
		return engineerr.InternalErr("turn.Handle", "checking InvokeModel idempotency", err)
	}

	var result *ChatResult
	if already {
		result, err = r.replayedAgentMessage(ctx, sess.ID, idempotencyKey)
		if err != nil {
			return err
		}
	} else {
		result, err = r.invokeModel(ctx, sess.ID, provider, agent, history, turnOrdinal, attemptOrdinal)
		if err != nil {
			return r.handleModelError(ctx, sess.ID, turnOrdinal, task, err)
		}
	}

	if toolCalls := toolCallParts(result.Content); len(toolCalls) > 0 {
		return r.dispatchTools(ctx, sess.ID, turnOrdinal, toolCalls)
	}

	return r.finish(ctx, sess.ID, turnOrdinal)
}

// wallTimeExceeded compares the turn's elapsed time against maxWallTime,
// measured from its turn.started event's timestamp.
func (r *Runtime) wallTimeExceeded(events []*models.Event, turnOrdinal int, maxWallTime time.Duration) (bool, error) {
	if maxWallTime <= 0 {
		return false, nil
	}
	for _, e := range events {
		if e.Type != models.EventTurnStarted {
			continue
		}
		var data models.TurnStartedData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return false, engineerr.InternalErr("turn.wallTimeExceeded", "unmarshaling turn.started", err)
		}
		if data.TurnOrdinal == turnOrdinal {
			return time.Since(e.CreatedAt) > maxWallTime, nil
		}
	}
	return false, nil
}

// replayedAgentMessage reconstructs the ChatResult from an already-
// committed message.agent event, for the InvokeModel idempotency skip.
func (r *Runtime) replayedAgentMessage(ctx context.Context, sessionID, idempotencyKey string) (*ChatResult, error) {
	events, err := r.events.ListEvents(ctx, sessionID, models.EventFilter{Types: []models.EventType{models.EventMessageAgent}})
	if err != nil {
		return nil, engineerr.InternalErr("turn.replayedAgentMessage", "listing agent messages", err)
	}
	for _, e := range events {
		var data models.MessageEventData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			continue
		}
		if data.IdempotencyKey == idempotencyKey {
			return &ChatResult{Content: convertContentParts(data.Content)}, nil
		}
	}
	return nil, engineerr.InternalErr("turn.replayedAgentMessage", "idempotency key reported present but message not found", nil)
}

// invokeModel calls the ModelDriver, streaming deltas as stream.delta
// events, then commits the final response as message.agent.
func (r *Runtime) invokeModel(
	ctx context.Context,
	sessionID string,
	provider *config.ModelProviderConfig,
	agent *config.AgentConfig,
	history []ChatMessage,
	turnOrdinal, attemptOrdinal int,
) (*ChatResult, error) {
	driver, err := r.drivers.Driver(provider)
	if err != nil {
		return nil, &ModelDriverError{Kind: ModelErrBadRequest, Message: "resolving model driver", Cause: err}
	}

	req := buildChatRequest(agent, provider.Model, history, r.tools)

	onDelta := func(delta ChatDelta) {
		data, _ := json.Marshal(models.StreamDeltaData{TurnOrdinal: turnOrdinal, Delta: delta.Text})
		if _, err := r.publisher.Append(ctx, models.AppendEventRequest{
			SessionID: sessionID, Type: models.EventStreamDelta, Data: data,
		}); err != nil {
			r.logger.Warn("appending stream.delta failed", "session_id", sessionID, "error", err)
		}
	}

	result, err := driver.Chat(ctx, req, onDelta)
	if err != nil {
		return nil, err
	}

	idempotencyKey := models.AgentMessageIdempotencyKey(turnOrdinal, attemptOrdinal)
	data, err := json.Marshal(models.MessageEventData{
		Content:        toModelContentParts(result.Content),
		TurnOrdinal:    turnOrdinal,
		AttemptOrdinal: attemptOrdinal,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("turn: marshaling message.agent payload: %w", err)
	}
	if _, err := r.publisher.Append(ctx, models.AppendEventRequest{
		SessionID: sessionID, Type: models.EventMessageAgent, Data: data,
	}); err != nil {
		return nil, fmt.Errorf("turn: appending message.agent: %w", err)
	}
	return result, nil
}

// handleModelError classifies a ModelDriver failure. Retryable errors are
// returned as-is so the queue's backoff/DLQ machinery retries the task,
// unless this was already the task's last attempt, in which case the
// failure is final: emit turn.failed and return nil so the queue does not
// attempt a retry the turn has already given up on.
func (r *Runtime) handleModelError(ctx context.Context, sessionID string, turnOrdinal int, task *models.Task, modelErr error) error {
	var driverErr *ModelDriverError
	if !errors.As(modelErr, &driverErr) {
		return engineerr.InternalErr("turn.handleModelError", "invoking model", modelErr)
	}

	lastAttempt := task.Attempt >= task.MaxAttempts
	if driverErr.Kind.Retryable() && !lastAttempt {
		return engineerr.TransientErr("turn.invokeModel", driverErr.Message, driverErr)
	}

	if failErr := r.fail(ctx, sessionID, turnOrdinal, models.FailureModelError, driverErr.Error()); failErr != nil {
		return failErr
	}
	return nil
}

func toolCallParts(content []ChatContentPart) []ChatContentPart {
	var calls []ChatContentPart
	for _, part := range content {
		if part.Kind == ChatContentToolCall {
			calls = append(calls, part)
		}
	}
	return calls
}

func toModelContentParts(parts []ChatContentPart) []models.ContentPart {
	out := make([]models.ContentPart, len(parts))
	for i, p := range parts {
		out[i] = models.ContentPart{
			Kind:       models.ContentPartKind(p.Kind),
			Text:       p.Text,
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Arguments:  p.Arguments,
			Result:     p.Result,
			IsError:    p.IsError,
		}
	}
	return out
}

// finish emits turn.completed and moves the session to idle. Idempotent
// per turn_ordinal, so a replayed Handle call
// that reaches Finish again (InvokeModel skipped via its own idempotency
// check) doesn't double-emit the terminal event.
func (r *Runtime) finish(ctx context.Context, sessionID string, turnOrdinal int) error {
	already, err := r.events.HasEventOfType(ctx, sessionID, models.EventTurnCompleted, "turn_ordinal", fmt.Sprint(turnOrdinal))
	if err != nil {
		return engineerr.InternalErr("turn.finish", "checking turn.completed idempotency", err)
	}
	if !already {
		data, err := json.Marshal(models.TurnCompletedData{TurnOrdinal: turnOrdinal})
		if err != nil {
			return fmt.Errorf("turn: marshaling turn.completed payload: %w", err)
		}
		if _, err := r.publisher.Append(ctx, models.AppendEventRequest{
			SessionID: sessionID, Type: models.EventTurnCompleted, Data: data,
		}); err != nil {
			return engineerr.InternalErr("turn.finish", "appending turn.completed", err)
		}
	}
	if err := r.sessions.TransitionStatus(ctx, sessionID, models.SessionIdle); err != nil {
		return engineerr.InternalErr("turn.finish", "transitioning session to idle", err)
	}
	return nil
}

// fail emits turn.failed and moves the session to failed. It returns a
// non-nil error only if persisting the failure
// itself fails, never to signal the turn's own logical failure back to
// the queue.
func (r *Runtime) fail(ctx context.Context, sessionID string, turnOrdinal int, kind models.FailureKind, message string) error {
	already, err := r.events.HasEventOfType(ctx, sessionID, models.EventTurnFailed, "turn_ordinal", fmt.Sprint(turnOrdinal))
	if err != nil {
		return engineerr.InternalErr("turn.fail", "checking turn.failed idempotency", err)
	}
	if !already {
		data, err := json.Marshal(models.TurnFailedData{TurnOrdinal: turnOrdinal, Kind: kind, Message: message})
		if err != nil {
			return fmt.Errorf("turn: marshaling turn.failed payload: %w", err)
		}
		if _, err := r.publisher.Append(ctx, models.AppendEventRequest{
			SessionID: sessionID, Type: models.EventTurnFailed, Data: data,
		}); err != nil {
			return engineerr.InternalErr("turn.fail", "appending turn.failed", err)
		}
	}
	if err := r.sessions.TransitionStatus(ctx, sessionID, models.SessionFailed); err != nil {
		return engineerr.InternalErr("turn.fail", "transitioning session to failed", err)
	}
	return nil
}
