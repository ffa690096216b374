package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/models"
)

// postMessage handles POST /sessions/:id/messages: it appends a
// message.user event and enqueues the StartTurn task the worker fleet
// will pick up, whatever the session's current status.
func (s *Server) postMessage(c *gin.Context) {
	sessionID := c.Param("id")

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(c, err)
		return
	}

	if _, err := s.sessions.Get(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}

	data, err := json.Marshal(models.MessageEventData{Content: req.toContentParts()})
	if err != nil {
		writeError(c, engineerr.InternalErr("api.postMessage", "marshaling message event data", err))
		return
	}

	event, err := s.publisher.Append(c.Request.Context(), models.AppendEventRequest{
		SessionID: sessionID,
		Type:      models.EventMessageUser,
		Data:      data,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	taskType := models.TaskStartTurn
	turnOrdinal, err := s.nextTurnOrdinal(c, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	payload, err := json.Marshal(models.StartTurnPayload{SessionID: sessionID, TurnOrdinal: turnOrdinal})
	if err != nil {
		writeError(c, engineerr.InternalErr("api.postMessage", "marshaling turn task payload", err))
		return
	}

	task, err := s.queue.Enqueue(c.Request.Context(), models.EnqueueTaskRequest{
		SessionID:   sessionID,
		Type:        taskType,
		Payload:     payload,
		MaxAttempts: s.cfg.Queue.MaxAttemptsDefault,
	})
	if err != nil {
		// A duplicate in-flight turn-driver task (invariant 5) is not an
		// error from the caller's perspective — the message was recorded
		// and a turn is already en route to picking it up.
		if engineerr.ClassOf(err) == engineerr.Conflict {
			c.JSON(http.StatusAccepted, gin.H{"event": eventSummary(event)})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"event": eventSummary(event), "task": newTaskResponse(task)})
}

func eventSummary(e *models.Event) gin.H {
	return gin.H{"id": e.ID, "sequence": e.Sequence, "type": e.Type}
}

// nextTurnOrdinal derives the next turn ordinal for sessionID by counting
// prior turn.started events, so a session's Nth message maps to its Nth
// turn deterministically even across API process restarts.
func (s *Server) nextTurnOrdinal(c *gin.Context, sessionID string) (int, error) {
	events, err := s.events.ListEvents(c.Request.Context(), sessionID, models.EventFilter{Types: []models.EventType{models.EventTurnStarted}})
	if err != nil {
		return 0, err
	}
	return len(events) + 1, nil
}

// listMessages handles GET /sessions/:id/messages.
func (s *Server) listMessages(c *gin.Context) {
	sessionID := c.Param("id")
	afterSequence := queryInt(c, "after_sequence", 0)
	limit := queryInt(c, "limit", 100)

	messages, err := s.events.ListMessages(c.Request.Context(), sessionID, afterSequence, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]messageResponse, len(messages))
	for i, m := range messages {
		out[i] = newMessageResponse(m)
	}
	c.JSON(http.StatusOK, out)
}
