package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listWorkers handles GET /operator/workers.
func (s *Server) listWorkers(c *gin.Context) {
	workers, err := s.registry.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]workerResponse, len(workers))
	for i, w := range workers {
		out[i] = newWorkerResponse(w)
	}
	c.JSON(http.StatusOK, out)
}

// registerWorker handles POST /operator/workers.
func (s *Server) registerWorker(c *gin.Context) {
	var req registerWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(c, err)
		return
	}

	worker, err := s.registry.Register(c.Request.Context(), req.toModel())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newWorkerResponse(worker))
}

// drainWorker handles POST /operator/workers/:id/drain: the worker stops
// accepting new claims but keeps its existing leases until they finish or
// expire, per the Worker.Status draining state.
func (s *Server) drainWorker(c *gin.Context) {
	if err := s.registry.Drain(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "draining"})
}

// replayDeadLetter handles POST /operator/dead-letter/:task_id/replay: it
// re-enqueues a dead-lettered task with a reset attempt counter.
func (s *Server) replayDeadLetter(c *gin.Context) {
	task, err := s.dlq.Replay(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(task))
}

// listDeadLetters handles GET /operator/dead-letter.
func (s *Server) listDeadLetters(c *gin.Context) {
	entries, err := s.dlq.List(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]deadLetterResponse, len(entries))
	for i, e := range entries {
		out[i] = newDeadLetterResponse(e)
	}
	c.JSON(http.StatusOK, out)
}

// reclaimExpired handles POST /operator/queue/reclaim: it runs the
// expired-lease sweep immediately rather than waiting for the background
// sweeper's next tick, for an operator who wants to unstick a queue right
// now.
func (s *Server) reclaimExpired(c *gin.Context) {
	count, err := s.queue.ReclaimExpired(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reclaimed": count})
}
