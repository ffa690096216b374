package modeldriver

import (
	"context"
	"testing"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnengine/core/pkg/turn"
)

type fakeCompletionsClient struct {
	resp *openaisdk.ChatCompletion
	err  error

	lastParams openaisdk.ChatCompletionNewParams
}

func (f *fakeCompletionsClient) New(ctx context.Context, body openaisdk.ChatCompletionNewParams) (*openaisdk.ChatCompletion, error) {
	f.lastParams = body
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestOpenAIDriverChatReturnsTextAndToolCalls(t *testing.T) {
	fake := &fakeCompletionsClient{
		resp: &openaisdk.ChatCompletion{
			Choices: []openaisdk.ChatCompletionChoice{{
				Message: openaisdk.ChatCompletionMessage{
					Content: "hello there",
					ToolCalls: []openaisdk.ChatCompletionMessageToolCall{{
						ID: "call_1",
						Function: openaisdk.ChatCompletionMessageToolCallFunction{
							Name:      "search",
							Arguments: `{"q":"go"}`,
						},
					}},
				},
			}},
			Usage: openaisdk.CompletionUsage{PromptTokens: 10, CompletionTokens: 5},
		},
	}
	d := NewOpenAIDriver(fake, "gpt-5")

	var deltas []turn.ChatDelta
	result, err := d.Chat(context.Background(), turn.ChatRequest{
		Messages: []turn.ChatMessage{
			{Role: turn.RoleSystem, Content: []turn.ChatContentPart{{Kind: turn.ChatContentText, Text: "be helpful"}}},
			{Role: turn.RoleUser, Content: []turn.ChatContentPart{{Kind: turn.ChatContentText, Text: "find something"}}},
		},
	}, func(d turn.ChatDelta) { deltas = append(deltas, d) })

	require.NoError(t, err)
	require.Len(t, result.Content, 2)
	assert.Equal(t, turn.ChatContentText, result.Content[0].Kind)
	assert.Equal(t, "hello there", result.Content[0].Text)
	assert.Equal(t, turn.ChatContentToolCall, result.Content[1].Kind)
	assert.Equal(t, "call_1", result.Content[1].ToolCallID)
	assert.Equal(t, "search", result.Content[1].ToolName)
	assert.Equal(t, 10, result.InputTokens)
	assert.Equal(t, 5, result.OutputTokens)
	assert.Len(t, deltas, 1)
	assert.Equal(t, shared.ChatModel("gpt-5"), fake.lastParams.Model)
}

func TestOpenAIDriverChatRequiresAtLeastOneMessage(t *testing.T) {
	d := NewOpenAIDriver(&fakeCompletionsClient{}, "gpt-5")
	_, err := d.Chat(context.Background(), turn.ChatRequest{}, nil)
	require.Error(t, err)
	var driverErr *turn.ModelDriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Equal(t, turn.ModelErrBadRequest, driverErr.Kind)
}

func TestClassifyOpenAIErrorMapsRateLimitStatus(t *testing.T) {
	err := &openaisdk.Error{StatusCode: 429}
	classified := classifyOpenAIError(err)
	assert.Equal(t, turn.ModelErrRateLimited, classified.Kind)
}
