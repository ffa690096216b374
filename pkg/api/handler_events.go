package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/eventlog"
	"github.com/turnengine/core/pkg/models"
)

// sseHeartbeatInterval is how often a comment line is written to keep an
// idle SSE connection from being reaped by an intermediate proxy.
const sseHeartbeatInterval = 15 * time.Second

// streamEvents handles GET /sessions/:id/events: a text/event-stream
// response replaying anything missed since the client's Last-Event-ID
// header, then tailing the live event feed.
func (s *Server) streamEvents(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.sessions.Get(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, engineerr.InternalErr("api.streamEvents", "response writer does not support flushing", nil))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	lastSeq := 0
	if v := c.GetHeader("Last-Event-ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lastSeq = n
		}
	}

	ch, unsubscribe := s.broker.Subscribe(sessionID)
	defer unsubscribe()

	ctx := c.Request.Context()

	if s.listener != nil {
		channel := eventlog.SessionChannel(sessionID)
		if err := s.listener.Subscribe(ctx, channel); err != nil {
			s.logger.Error("sse listener subscribe failed", "session_id", sessionID, "error", err)
		}
		defer func() {
			// Only UNLISTEN once no SSE client on this process still wants
			// the channel; another concurrent stream for the same session
			// may still be live.
			if !s.broker.HasSubscribers(sessionID) {
				if err := s.listener.Unsubscribe(context.Background(), channel); err != nil {
					s.logger.Error("sse listener unsubscribe failed", "session_id", sessionID, "error", err)
				}
			}
		}()
	}

	if err := s.broker.Catchup(ctx, sessionID, lastSeq, func(e *models.Event) {
		writeSSE(c.Writer, e)
	}); err != nil {
		s.logger.Error("sse catchup failed", "session_id", sessionID, "error", err)
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c.Writer, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// writeSSE writes one event in text/event-stream framing: an id: line
// (so a reconnecting client's Last-Event-ID round-trips as the event's
// sequence), an event: line naming the event type, and a data: line
// carrying the raw JSON payload.
func writeSSE(w http.ResponseWriter, e *models.Event) {
	data := e.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Sequence, e.Type, data)
}
