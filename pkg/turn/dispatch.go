package turn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// dispatchTools emits tool.call_started and enqueues one ExecuteTool task
// per tool_call content part in the assistant's response. Dispatch is
// idempotent per tool_call_id: a call already
// recorded as started (from a prior, crashed attempt at this same state)
// is skipped rather than re-enqueued. Once dispatched, this Handle call
// returns — AwaitTools is not a state this worker blocks in; the turn
// resumes later when a ContinueTurn task is claimed.
func (r *Runtime) dispatchTools(ctx context.Context, sessionID string, turnOrdinal int, calls []ChatContentPart) error {
	for _, call := range calls {
		started, err := r.events.HasEventOfType(ctx, sessionID, models.EventToolCallStarted, "tool_call_id", call.ToolCallID)
		if err != nil {
			return engineerr.InternalErr("turn.dispatchTools", "checking tool dispatch idempotency", err)
		}
		if started {
			continue
		}

		startedData, err := json.Marshal(models.ToolCallStartedData{
			TurnOrdinal: turnOrdinal, ToolCallID: call.ToolCallID, ToolName: call.ToolName, Arguments: call.Arguments,
		})
		if err != nil {
			return fmt.Errorf("turn: marshaling tool.call_started payload: %w", err)
		}
		if _, err := r.publisher.Append(ctx, models.AppendEventRequest{
			SessionID: sessionID, Type: models.EventToolCallStarted, Data: startedData,
		}); err != nil {
			return engineerr.InternalErr("turn.dispatchTools", "appending tool.call_started", err)
		}

		taskPayload, err := json.Marshal(models.ExecuteToolPayload{
			SessionID: sessionID, TurnOrdinal: turnOrdinal,
			ToolCallID: call.ToolCallID, ToolName: call.ToolName, Arguments: call.Arguments,
		})
		if err != nil {
			return fmt.Errorf("turn: marshaling ExecuteTool payload: %w", err)
		}
		if _, err := r.queue.Enqueue(ctx, models.EnqueueTaskRequest{
			SessionID: sessionID, Type: models.TaskExecuteTool, Payload: taskPayload, MaxAttempts: 3,
		}); err != nil {
			return engineerr.InternalErr("turn.dispatchTools", "enqueuing ExecuteTool task", err)
		}
	}
	return nil
}
