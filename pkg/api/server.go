// Package api is a thin HTTP surface over the engine's durable state:
// session creation, posting a user message (which appends an event and
// enqueues the turn task a worker will claim), listing the projected
// message view, an SSE event stream, and a small set of operator
// endpoints over the worker registry and dead-letter queue.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/eventlog"
	"github.com/turnengine/core/pkg/queue"
	"github.com/turnengine/core/pkg/registry"
	"github.com/turnengine/core/pkg/session"
)

// Server is the HTTP API, wired against the same component stores the
// turn loop and queue workers use — it is a reader/writer of the same
// durable state, holding direct references to its stores rather than
// calling through a network RPC.
type Server struct {
	sessions   *session.Store
	events     *eventlog.Store
	publisher  *eventlog.Publisher
	broker     *eventlog.Broker
	listener   *eventlog.Listener
	queue      *queue.Store
	dlq        *queue.DeadLetterStore
	registry   *registry.Registry
	dispatcher *registry.Dispatcher
	cfg        *config.Config
	logger     *slog.Logger

	engine *gin.Engine
	srv    *http.Server
}

// NewServer builds a Server and registers its routes. listener may be nil
// in tests that exercise routes without a live LISTEN/NOTIFY connection —
// streamEvents then relies solely on Broker's in-process fan-out, which is
// sufficient for any events appended by this same process.
func NewServer(
	sessions *session.Store,
	events *eventlog.Store,
	publisher *eventlog.Publisher,
	broker *eventlog.Broker,
	listener *eventlog.Listener,
	queueStore *queue.Store,
	dlq *queue.DeadLetterStore,
	reg *registry.Registry,
	dispatcher *registry.Dispatcher,
	cfg *config.Config,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions, events: events, publisher: publisher, broker: broker, listener: listener,
		queue: queueStore, dlq: dlq, registry: reg, dispatcher: dispatcher,
		cfg: cfg, logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), securityHeaders(), corsMiddleware(cfg.HTTP))
	s.engine = engine
	s.routes()
	return s
}

// Engine exposes the underlying gin.Engine, mainly so tests can drive
// requests through httptest without going over the network.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	sessions := s.engine.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("", s.listSessions)
	sessions.GET("/:id", s.getSession)
	sessions.POST("/:id/messages", s.postMessage)
	sessions.GET("/:id/messages", s.listMessages)
	sessions.GET("/:id/events", s.streamEvents)

	operator := s.engine.Group("/operator")
	operator.GET("/workers", s.listWorkers)
	operator.POST("/workers", s.registerWorker)
	operator.POST("/workers/:id/drain", s.drainWorker)
	operator.GET("/dead-letter", s.listDeadLetters)
	operator.POST("/dead-letter/:task_id/replay", s.replayDeadLetter)
	operator.POST("/queue/reclaim", s.reclaimExpired)
}

// Start begins serving HTTP on the configured port. It blocks until the
// server stops (Shutdown is called or it errors).
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    portAddr(s.cfg.HTTP.Port),
		Handler: s.engine,
	}
	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, letting in-flight requests
// (including open SSE streams, which observe ctx.Done via the request
// context) drain.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
