package turn

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/database"
	"github.com/turnengine/core/pkg/eventlog"
	"github.com/turnengine/core/pkg/models"
	"github.com/turnengine/core/pkg/queue"
	"github.com/turnengine/core/pkg/session"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := database.NewClient(ctx, database.Config{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "test",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 2,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client.Pool
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		LeaseDuration:      5 * time.Second,
		BackoffBase:        100 * time.Millisecond,
		BackoffMax:         time.Second,
		MaxAttemptsDefault: 3,
		PollInterval:       10 * time.Millisecond,
		PollIntervalJitter: 5 * time.Millisecond,
	}
}

// fakeDriver returns one canned ChatResult per call, in order.
type fakeDriver struct {
	responses []*ChatResult
	calls     int
}

func (f *fakeDriver) Chat(ctx context.Context, req ChatRequest, onDelta func(ChatDelta)) (*ChatResult, error) {
	onDelta(ChatDelta{Text: "..."})
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

type fakeDriverFactory struct {
	driver *fakeDriver
}

func (f *fakeDriverFactory) Driver(provider *config.ModelProviderConfig) (ModelDriver, error) {
	return f.driver, nil
}

type fakeTool struct {
	result json.RawMessage
}

func (f *fakeTool) Describe() ToolSchema {
	return ToolSchema{Name: "search", Description: "search things"}
}

func (f *fakeTool) Execute(ctx context.Context, sessionCtx SessionContext, arguments json.RawMessage) (json.RawMessage, error) {
	return f.result, nil
}

type fakeToolRegistry struct {
	tools map[string]ToolExecutor
}

func (r *fakeToolRegistry) Get(name string) (ToolExecutor, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *fakeToolRegistry) Schemas(names []string) []ToolSchema {
	var out []ToolSchema
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, t.Describe())
		}
	}
	return out
}

func newTestHarness(t *testing.T, pool *pgxpool.Pool, driver *fakeDriver, tools ToolRegistry) (*Runtime, *ToolHandler, *session.Store, *eventlog.Store, *queue.Store) {
	sessions := session.New(pool)
	events := eventlog.NewStore(pool)
	publisher := eventlog.NewPublisher(pool)
	q := queue.NewStore(pool, testQueueConfig())

	agents := config.NewAgentRegistry(map[string]*config.AgentConfig{
		"assistant": {
			SystemPrompt:  "you are a helpful assistant",
			ModelProvider: "mock",
			Capabilities:  []config.CapabilityRef{{Name: "search", Position: 0}},
			MaxIterations: 3,
			MaxWallTime:   time.Minute,
		},
	})
	providers := config.NewModelProviderRegistry(map[string]*config.ModelProviderConfig{
		"mock": {Type: config.ModelProviderAnthropic, Model: "mock-model", APIKeyEnv: "MOCK_API_KEY"},
	})

	runtime := NewRuntime(sessions, events, publisher, q, agents, providers, &fakeDriverFactory{driver: driver}, tools, nil)
	toolHandler := NewToolHandler(events, publisher, q, tools, nil, nil)
	return runtime, toolHandler, sessions, events, q
}

func appendUserMessage(t *testing.T, ctx context.Context, publisher *eventlog.Publisher, sessionID, text string) {
	t.Helper()
	data, err := json.Marshal(models.MessageEventData{Content: []models.ContentPart{{Kind: models.ContentText, Text: text}}})
	require.NoError(t, err)
	_, err = publisher.Append(ctx, models.AppendEventRequest{SessionID: sessionID, Type: models.EventMessageUser, Data: data})
	require.NoError(t, err)
}

func TestRuntimeHandleFinishesTurnWithoutToolCalls(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	driver := &fakeDriver{responses: []*ChatResult{
		{Content: []ChatContentPart{{Kind: ChatContentText, Text: "hello there"}}},
	}}
	runtime, _, sessions, events, q := newTestHarness(t, pool, driver, &fakeToolRegistry{})
	publisher := eventlog.NewPublisher(pool)

	sess, err := sessions.Create(ctx, models.CreateSessionRequest{AgentID: "assistant"})
	require.NoError(t, err)
	appendUserMessage(t, ctx, publisher, sess.ID, "hi")

	taskPayload, err := json.Marshal(models.StartTurnPayload{SessionID: sess.ID, TurnOrdinal: 1})
	require.NoError(t, err)
	task, err := q.Enqueue(ctx, models.EnqueueTaskRequest{SessionID: sess.ID, Type: models.TaskStartTurn, Payload: taskPayload})
	require.NoError(t, err)

	require.NoError(t, runtime.Handle(ctx, task))

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionIdle, got.Status)

	completed, err := events.ListEvents(ctx, sess.ID, models.EventFilter{Types: []models.EventType{models.EventTurnCompleted}})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, 1, driver.calls)
}

func TestRuntimeHandleIsIdempotentOnReplay(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	driver := &fakeDriver{responses: []*ChatResult{
		{Content: []ChatContentPart{{Kind: ChatContentText, Text: "hello there"}}},
	}}
	runtime, _, sessions, events, q := newTestHarness(t, pool, driver, &fakeToolRegistry{})
	publisher := eventlog.NewPublisher(pool)

	sess, err := sessions.Create(ctx, models.CreateSessionRequest{AgentID: "assistant"})
	require.NoError(t, err)
	appendUserMessage(t, ctx, publisher, sess.ID, "hi")

	taskPayload, err := json.Marshal(models.StartTurnPayload{SessionID: sess.ID, TurnOrdinal: 1})
	require.NoError(t, err)
	task, err := q.Enqueue(ctx, models.EnqueueTaskRequest{SessionID: sess.ID, Type: models.TaskStartTurn, Payload: taskPayload})
	require.NoError(t, err)

	require.NoError(t, runtime.Handle(ctx, task))
	require.NoError(t, runtime.Handle(ctx, task))

	require.Equal(t, 1, driver.calls, "InvokeModel must not be re-invoked on replay")

	agentMessages, err := events.ListEvents(ctx, sess.ID, models.EventFilter{Types: []models.EventType{models.EventMessageAgent}})
	require.NoError(t, err)
	require.Len(t, agentMessages, 1)

	completed, err := events.ListEvents(ctx, sess.ID, models.EventFilter{Types: []models.EventType{models.EventTurnCompleted}})
	require.NoError(t, err)
	require.Len(t, completed, 1, "turn.completed must not be double-emitted on replay")
}

func TestRuntimeHandleDispatchesToolsThenContinues(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	driver := &fakeDriver{responses: []*ChatResult{
		{Content: []ChatContentPart{{Kind: ChatContentToolCall, ToolCallID: "call-1", ToolName: "search", Arguments: json.RawMessage(`{"query":"go"}`)}}},
		{Content: []ChatContentPart{{Kind: ChatContentText, Text: "here is what I found"}}},
	}}
	tools := &fakeToolRegistry{tools: map[string]ToolExecutor{
		"search": &fakeTool{result: json.RawMessage(`{"hits":3}`)},
	}}
	runtime, toolHandler, sessions, events, q := newTestHarness(t, pool, driver, tools)
	publisher := eventlog.NewPublisher(pool)

	sess, err := sessions.Create(ctx, models.CreateSessionRequest{AgentID: "assistant"})
	require.NoError(t, err)
	appendUserMessage(t, ctx, publisher, sess.ID, "search for go")

	startPayload, err := json.Marshal(models.StartTurnPayload{SessionID: sess.ID, TurnOrdinal: 1})
	require.NoError(t, err)
	startTask, err := q.Enqueue(ctx, models.EnqueueTaskRequest{SessionID: sess.ID, Type: models.TaskStartTurn, Payload: startPayload})
	require.NoError(t, err)

	require.NoError(t, runtime.Handle(ctx, startTask))

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionRunning, got.Status, "session stays running while awaiting tool completion")

	started, err := events.ListEvents(ctx, sess.ID, models.EventFilter{Types: []models.EventType{models.EventToolCallStarted}})
	require.NoError(t, err)
	require.Len(t, started, 1)

	claimed, err := q.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskExecuteTool}, MaxItems: 1, LeaseDuration: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, toolHandler.Handle(ctx, claimed[0]))

	completed, err := events.ListEvents(ctx, sess.ID, models.EventFilter{Types: []models.EventType{models.EventToolCallCompleted}})
	require.NoError(t, err)
	require.Len(t, completed, 1)

	claimedContinue, err := q.Claim(ctx, models.ClaimRequest{
		WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskContinueTurn}, MaxItems: 1, LeaseDuration: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, claimedContinue, 1)

	require.NoError(t, runtime.Handle(ctx, claimedContinue[0]))

	final, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionIdle, final.Status)
	require.Equal(t, 2, driver.calls)

	turnCompleted, err := events.ListEvents(ctx, sess.ID, models.EventFilter{Types: []models.EventType{models.EventTurnCompleted}})
	require.NoError(t, err)
	require.Len(t, turnCompleted, 1)
}

func TestRuntimeHandleFailsOnIterationLimit(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	// Every response asks for another tool call, so the loop never finishes
	// on its own and must be stopped by MaxIterations (3, from the harness).
	toolCallResponse := func(id string) *ChatResult {
		return &ChatResult{Content: []ChatContentPart{{Kind: ChatContentToolCall, ToolCallID: id, ToolName: "search", Arguments: json.RawMessage(`{}`)}}}
	}
	driver := &fakeDriver{responses: []*ChatResult{
		toolCallResponse("call-1"), toolCallResponse("call-2"), toolCallResponse("call-3"),
	}}
	tools := &fakeToolRegistry{tools: map[string]ToolExecutor{
		"search": &fakeTool{result: json.RawMessage(`{}`)},
	}}
	runtime, toolHandler, sessions, events, q := newTestHarness(t, pool, driver, tools)
	publisher := eventlog.NewPublisher(pool)

	sess, err := sessions.Create(ctx, models.CreateSessionRequest{AgentID: "assistant"})
	require.NoError(t, err)
	appendUserMessage(t, ctx, publisher, sess.ID, "loop forever")

	turnOrdinal := 1
	startPayload, err := json.Marshal(models.StartTurnPayload{SessionID: sess.ID, TurnOrdinal: turnOrdinal})
	require.NoError(t, err)
	task, err := q.Enqueue(ctx, models.EnqueueTaskRequest{SessionID: sess.ID, Type: models.TaskStartTurn, Payload: startPayload})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, runtime.Handle(ctx, task))

		claimed, err := q.Claim(ctx, models.ClaimRequest{
			WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskExecuteTool}, MaxItems: 1, LeaseDuration: 5 * time.Second,
		})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, toolHandler.Handle(ctx, claimed[0]))

		claimedContinue, err := q.Claim(ctx, models.ClaimRequest{
			WorkerID: "w1", ActivityTypes: []models.TaskType{models.TaskContinueTurn}, MaxItems: 1, LeaseDuration: 5 * time.Second,
		})
		require.NoError(t, err)
		require.Len(t, claimedContinue, 1)
		task = claimedContinue[0]
	}

	require.NoError(t, runtime.Handle(ctx, task))

	final, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionFailed, final.Status)

	failed, err := events.ListEvents(ctx, sess.ID, models.EventFilter{Types: []models.EventType{models.EventTurnFailed}})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	var failedData models.TurnFailedData
	require.NoError(t, json.Unmarshal(failed[0].Data, &failedData))
	require.Equal(t, models.FailureIterationLimit, failedData.Kind)
}
