package toolexecutor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnengine/core/pkg/turn"
)

func TestAddToolComputesSum(t *testing.T) {
	tool, err := NewAddTool()
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), turn.SessionContext{}, json.RawMessage(`{"a":5,"b":3}`))
	require.NoError(t, err)

	var out addResult
	require.NoError(t, json.Unmarshal(result, &out))
	assert.Equal(t, float64(8), out.Sum)
}

func TestAddToolRejectsMissingField(t *testing.T) {
	tool, err := NewAddTool()
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), turn.SessionContext{}, json.RawMessage(`{"a":5}`))
	require.Error(t, err)
	var toolErr *turn.ToolExecutorError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, turn.ToolErrInvalidArguments, toolErr.Kind)
}

func TestAddToolRejectsUnknownField(t *testing.T) {
	tool, err := NewAddTool()
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), turn.SessionContext{}, json.RawMessage(`{"a":5,"b":3,"c":1}`))
	require.Error(t, err)
	var toolErr *turn.ToolExecutorError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, turn.ToolErrInvalidArguments, toolErr.Kind)
}

func TestWeatherToolIsDeterministicPerLocation(t *testing.T) {
	tool, err := NewWeatherTool(nil)
	require.NoError(t, err)

	first, err := tool.Execute(context.Background(), turn.SessionContext{}, json.RawMessage(`{"location":"Lisbon"}`))
	require.NoError(t, err)
	second, err := tool.Execute(context.Background(), turn.SessionContext{}, json.RawMessage(`{"location":"Lisbon"}`))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))

	other, err := tool.Execute(context.Background(), turn.SessionContext{}, json.RawMessage(`{"location":"Porto"}`))
	require.NoError(t, err)
	assert.NotEqual(t, string(first), string(other))
}

func TestRegistryGetAndSchemas(t *testing.T) {
	add, err := NewAddTool()
	require.NoError(t, err)
	weather, err := NewWeatherTool(nil)
	require.NoError(t, err)

	reg := NewRegistry(add, weather)

	tool, ok := reg.Get("add")
	require.True(t, ok)
	assert.Equal(t, add, tool)

	_, ok = reg.Get("unknown")
	assert.False(t, ok)

	schemas := reg.Schemas([]string{"add", "unknown", "weather"})
	require.Len(t, schemas, 2)
	assert.Equal(t, "add", schemas[0].Name)
	assert.Equal(t, "weather", schemas[1].Name)
}

func TestMemoryFSReadWrite(t *testing.T) {
	fs := NewMemoryFS()
	_, err := fs.ReadFile("notes.txt")
	require.Error(t, err)

	require.NoError(t, fs.WriteFile("notes.txt", []byte("hello")))
	data, err := fs.ReadFile("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
