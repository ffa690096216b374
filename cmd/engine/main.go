// Command engine runs one turn-engine process: the HTTP API, the queue
// workers that drive the turn loop and tool execution, and the
// background sweeps that reclaim stale leases, expire stale workers, and
// compact replayed stream.delta events.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/database"
	"github.com/turnengine/core/pkg/engineerr"
	"github.com/turnengine/core/pkg/eventlog"
	"github.com/turnengine/core/pkg/modeldriver"
	"github.com/turnengine/core/pkg/models"
	"github.com/turnengine/core/pkg/queue"
	"github.com/turnengine/core/pkg/registry"
	"github.com/turnengine/core/pkg/session"
	"github.com/turnengine/core/pkg/toolexecutor"
	"github.com/turnengine/core/pkg/turn"

	"github.com/turnengine/core/pkg/api"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	workerConcurrency := flag.Int("worker-concurrency", 4, "per-activity-type worker goroutine count")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	logger.Info("configuration loaded", "config_dir", stats.ConfigDir, "agents", stats.AgentCount, "model_providers", stats.ModelProviders)

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		logger.Error("loading database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		logger.Error("connecting to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	logger.Info("connected to database", "database", dbCfg.Database)

	pool := dbClient.Pool

	sessions := session.New(pool)
	events := eventlog.NewStore(pool)
	publisher := eventlog.NewPublisher(pool)
	broker := eventlog.NewBroker(events)
	listener := eventlog.NewListener(dbCfg.DSN(), broker)

	queueStore := queue.NewStore(pool, cfg.Queue)
	dlq := queue.NewDeadLetterStore(pool, cfg.Queue)
	breakers := queue.NewBreakerStore(pool)

	reg := registry.New(pool)
	dispatcher := registry.NewDispatcher(pool, reg, queueStore, breakers)
	sweeper := registry.NewSweeper(pool, queueStore, cfg.Registry)

	compactor := eventlog.NewCompactor(pool, events, queueStore, cfg.Retention)

	addTool, err := toolexecutor.NewAddTool()
	if err != nil {
		logger.Error("constructing add tool", "error", err)
		os.Exit(1)
	}
	weatherTool, err := toolexecutor.NewWeatherTool(nil)
	if err != nil {
		logger.Error("constructing weather tool", "error", err)
		os.Exit(1)
	}
	tools := toolexecutor.NewRegistry(addTool, weatherTool)
	sessionFS := toolexecutor.NewSessionFSStore()

	drivers := modeldriver.NewFactory()

	runtime := turn.NewRuntime(sessions, events, publisher, queueStore, cfg.AgentRegistry, cfg.ModelProviderRegistry, drivers, tools, logger)
	toolHandler := turn.NewToolHandler(events, publisher, queueStore, tools, sessionFS, logger)
	compactHandler := compactEventsHandler{compactor: compactor}

	workerPool := queue.NewPool(workerID(), pool, cfg.Queue)

	server := api.NewServer(sessions, events, publisher, broker, listener, queueStore, dlq, reg, dispatcher, cfg, logger)

	if err := listener.Start(ctx); err != nil {
		logger.Error("starting event listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(ctx)

	workerPool.Start(ctx, []queue.WorkerSpec{
		{Handler: runtime, ActivityTypes: []models.TaskType{models.TaskStartTurn, models.TaskContinueTurn}, Concurrency: *workerConcurrency},
		{Handler: toolHandler, ActivityTypes: []models.TaskType{models.TaskExecuteTool}, Concurrency: *workerConcurrency},
		{Handler: compactHandler, ActivityTypes: []models.TaskType{models.TaskCompactEvents}, Concurrency: 1},
	})
	defer workerPool.Stop()

	go sweeper.Run(ctx)
	defer sweeper.Stop()

	go compactor.Run(ctx)
	defer compactor.Stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.Info("engine started", "http_port", cfg.HTTP.Port)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("api server exited", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("shutting down api server", "error", err)
	}
}

// workerID names this process's worker pool, distinguishing its leases in
// the tasks table from any sibling process. It is not registered in the
// workers table.
func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return host + "-" + models.NewEphemeralID()
}

// compactEventsHandler adapts eventlog.Compactor.Compact to queue.TaskHandler
// for the CompactEvents activity type Compactor itself enqueues.
type compactEventsHandler struct {
	compactor *eventlog.Compactor
}

func (h compactEventsHandler) Handle(ctx context.Context, task *models.Task) error {
	var payload models.CompactEventsPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return engineerr.PermanentErr("engine.compactEventsHandler", "unmarshaling CompactEvents payload", err)
	}
	_, err := h.compactor.Compact(ctx, payload.SessionID, payload.BeforeSequence)
	return err
}
