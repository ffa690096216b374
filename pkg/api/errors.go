package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turnengine/core/pkg/engineerr"
)

// writeError maps an engineerr.Class to an HTTP status and writes the
// JSON error body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch engineerr.ClassOf(err) {
	case engineerr.InputInvalid:
		status = http.StatusBadRequest
	case engineerr.NotFound:
		status = http.StatusNotFound
	case engineerr.Conflict:
		status = http.StatusConflict
	case engineerr.CircuitOpen:
		status = http.StatusServiceUnavailable
	case engineerr.Transient:
		status = http.StatusServiceUnavailable
	case engineerr.Permanent:
		status = http.StatusUnprocessableEntity
	case engineerr.Internal:
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		slog.Error("unexpected api error", "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// writeValidationError reports a request-body validation failure, which
// never reaches engineerr (it's rejected before any component boundary is
// called).
func writeValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
