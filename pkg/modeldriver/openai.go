package modeldriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/turnengine/core/pkg/turn"
)

// completionsClient captures the subset of
// *openaisdk.ChatCompletionService used by OpenAIDriver.
type completionsClient interface {
	New(ctx context.Context, body openaisdk.ChatCompletionNewParams) (*openaisdk.ChatCompletion, error)
}

// OpenAIDriver implements turn.ModelDriver over the OpenAI Chat Completions
// API. OpenAI completions are not streamed token-by-token here — onDelta
// is invoked at most once with the full assistant text before Chat
// returns, after one non-streaming round trip (not at all when the
// response carries no text).
type OpenAIDriver struct {
	chat  completionsClient
	model string
}

// NewOpenAIDriver builds a driver bound to one model identifier.
func NewOpenAIDriver(chat completionsClient, model string) *OpenAIDriver {
	return &OpenAIDriver{chat: chat, model: model}
}

// Chat issues one Chat Completions request and folds the response into a
// ChatResult.
func (d *OpenAIDriver) Chat(ctx context.Context, req turn.ChatRequest, onDelta func(turn.ChatDelta)) (*turn.ChatResult, error) {
	params, err := d.buildParams(req)
	if err != nil {
		return nil, &turn.ModelDriverError{Kind: turn.ModelErrBadRequest, Message: err.Error(), Cause: err}
	}

	resp, err := d.chat.New(ctx, *params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &turn.ModelDriverError{Kind: turn.ModelErrServerError, Message: "openai: response contained no choices"}
	}

	msg := resp.Choices[0].Message
	var content []turn.ChatContentPart
	if msg.Content != "" {
		if onDelta != nil {
			onDelta(turn.ChatDelta{Text: msg.Content})
		}
		content = append(content, turn.ChatContentPart{Kind: turn.ChatContentText, Text: msg.Content})
	}
	for _, call := range msg.ToolCalls {
		content = append(content, turn.ChatContentPart{
			Kind:       turn.ChatContentToolCall,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
			Arguments:  json.RawMessage(call.Function.Arguments),
		})
	}

	return &turn.ChatResult{
		Content:      content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (d *OpenAIDriver) buildParams(req turn.ChatRequest) (*openaisdk.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = d.model
	}
	if model == "" {
		return nil, errors.New("openai: no model configured")
	}

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		encoded, err := encodeOpenAIMessage(m)
		if err != nil {
			return nil, err
		}
		messages = append(messages, encoded...)
	}
	if len(messages) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openaisdk.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]openaisdk.ChatCompletionToolParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			var schema map[string]any
			if len(t.Parameters) > 0 {
				if err := json.Unmarshal(t.Parameters, &schema); err != nil {
					return nil, fmt.Errorf("openai: tool %q schema: %w", t.Name, err)
				}
			}
			tools = append(tools, openaisdk.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openaisdk.String(t.Description),
					Parameters:  schema,
				},
			})
		}
		params.Tools = tools
	}
	return &params, nil
}

func encodeOpenAIMessage(m turn.ChatMessage) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case turn.RoleSystem:
		return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.SystemMessage(textOf(m.Content))}, nil
	case turn.RoleUser:
		return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage(textOf(m.Content))}, nil
	case turn.RoleAssistant:
		return encodeOpenAIAssistantMessage(m.Content)
	case turn.RoleTool:
		var out []openaisdk.ChatCompletionMessageParamUnion
		for _, p := range m.Content {
			if p.Kind == turn.ChatContentToolResult {
				out = append(out, openaisdk.ToolMessage(string(p.Result), p.ToolCallID))
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
	}
}

func encodeOpenAIAssistantMessage(parts []turn.ChatContentPart) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var text string
	var calls []openaisdk.ChatCompletionMessageToolCallParam
	for _, p := range parts {
		switch p.Kind {
		case turn.ChatContentText:
			text += p.Text
		case turn.ChatContentToolCall:
			calls = append(calls, openaisdk.ChatCompletionMessageToolCallParam{
				ID: p.ToolCallID,
				Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
					Name:      p.ToolName,
					Arguments: string(p.Arguments),
				},
			})
		}
	}
	msg := openaisdk.ChatCompletionAssistantMessageParam{}
	if text != "" {
		msg.Content = openaisdk.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openaisdk.String(text),
		}
	}
	if len(calls) > 0 {
		msg.ToolCalls = calls
	}
	return []openaisdk.ChatCompletionMessageParamUnion{{OfAssistant: &msg}}, nil
}

func textOf(parts []turn.ChatContentPart) string {
	var s string
	for _, p := range parts {
		if p.Kind == turn.ChatContentText {
			s += p.Text
		}
	}
	return s
}

func classifyOpenAIError(err error) *turn.ModelDriverError {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return &turn.ModelDriverError{Kind: turn.ModelErrRateLimited, Message: apiErr.Error(), Cause: err}
		case 401, 403:
			return &turn.ModelDriverError{Kind: turn.ModelErrAuthError, Message: apiErr.Error(), Cause: err}
		case 400, 404, 422:
			return &turn.ModelDriverError{Kind: turn.ModelErrBadRequest, Message: apiErr.Error(), Cause: err}
		default:
			if apiErr.StatusCode >= 500 {
				return &turn.ModelDriverError{Kind: turn.ModelErrServerError, Message: apiErr.Error(), Cause: err}
			}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &turn.ModelDriverError{Kind: turn.ModelErrTimeout, Message: err.Error(), Cause: err}
	}
	return &turn.ModelDriverError{Kind: turn.ModelErrServerError, Message: err.Error(), Cause: err}
}
