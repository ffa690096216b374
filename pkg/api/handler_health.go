package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// health handles GET /health, aggregating worker, queue, and circuit
// breaker state the way the dispatcher tracks it for backpressure
// decisions.
func (s *Server) health(c *gin.Context) {
	fleet, err := s.dispatcher.Health(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newHealthResponse(fleet))
}
