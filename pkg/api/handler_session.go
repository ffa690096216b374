package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turnengine/core/pkg/models"
)

// createSession handles POST /sessions.
func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(c, err)
		return
	}

	sess, err := s.sessions.Create(c.Request.Context(), req.toModel())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(sess))
}

// getSession handles GET /sessions/:id.
func (s *Server) getSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

// listSessions handles GET /sessions.
func (s *Server) listSessions(c *gin.Context) {
	filters := models.SessionFilters{
		Status:  models.SessionStatus(c.Query("status")),
		AgentID: c.Query("agent_id"),
		Limit:   queryInt(c, "limit", 50),
		Offset:  queryInt(c, "offset", 0),
	}

	sessions, err := s.sessions.List(c.Request.Context(), filters)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]sessionResponse, len(sessions))
	for i, sess := range sessions {
		out[i] = newSessionResponse(sess)
	}
	c.JSON(http.StatusOK, out)
}

// queryInt parses a query parameter as an int, falling back to def on
// absence or malformed input rather than rejecting the request — listing
// filters are advisory, not validated input.
func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
