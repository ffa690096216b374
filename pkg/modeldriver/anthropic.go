package modeldriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/turnengine/core/pkg/turn"
)

// defaultMaxTokens is the max_tokens sent on every Anthropic request.
// turn.ChatRequest carries no token limit, so this is the ceiling for
// every Anthropic-backed agent.
const defaultMaxTokens = 8192

// messagesClient captures the subset of *anthropicsdk.Client used by
// AnthropicDriver, satisfied by *sdk.MessageService so tests can supply a
// fake.
type messagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicDriver implements turn.ModelDriver over the Anthropic Messages
// streaming API.
type AnthropicDriver struct {
	msg   messagesClient
	model string
}

// NewAnthropicDriver builds a driver bound to one model identifier; model
// providers with distinct model names are distinct config.ModelProviderConfig
// entries and so get distinct drivers via Factory's cache.
func NewAnthropicDriver(msg messagesClient, model string) *AnthropicDriver {
	return &AnthropicDriver{msg: msg, model: model}
}

// Chat streams one Anthropic Messages completion, forwarding text deltas to
// onDelta as they arrive and assembling the final ChatResult once the
// stream closes.
func (d *AnthropicDriver) Chat(ctx context.Context, req turn.ChatRequest, onDelta func(turn.ChatDelta)) (*turn.ChatResult, error) {
	params, err := d.buildParams(req)
	if err != nil {
		return nil, &turn.ModelDriverError{Kind: turn.ModelErrBadRequest, Message: err.Error(), Cause: err}
	}

	stream := d.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, classifyAnthropicError(err)
	}

	acc := newAnthropicAccumulator(onDelta)
	for stream.Next() {
		if err := acc.handle(stream.Current()); err != nil {
			return nil, &turn.ModelDriverError{Kind: turn.ModelErrServerError, Message: err.Error(), Cause: err}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, classifyAnthropicError(err)
	}

	return acc.result(), nil
}

func (d *AnthropicDriver) buildParams(req turn.ChatRequest) (*sdk.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = d.model
	}
	if model == "" {
		return nil, errors.New("anthropic: no model configured")
	}

	var system []sdk.TextBlockParam
	var conversation []sdk.MessageParam
	for _, m := range req.Messages {
		if m.Role == turn.RoleSystem {
			for _, p := range m.Content {
				if p.Kind == turn.ChatContentText && p.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: p.Text})
				}
			}
			continue
		}
		blocks, err := encodeAnthropicBlocks(m.Content)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case turn.RoleUser, turn.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case turn.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(defaultMaxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		toolParams := make([]sdk.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema, err := anthropicInputSchema(t.Parameters)
			if err != nil {
				return nil, fmt.Errorf("anthropic: tool %q schema: %w", t.Name, err)
			}
			u := sdk.ToolUnionParamOfTool(schema, t.Name)
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(t.Description)
			}
			toolParams = append(toolParams, u)
		}
		params.Tools = toolParams
	}
	return &params, nil
}

func encodeAnthropicBlocks(parts []turn.ChatContentPart) ([]sdk.ContentBlockParamUnion, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case turn.ChatContentText:
			if p.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(p.Text))
			}
		case turn.ChatContentToolCall:
			var args any
			if len(p.Arguments) > 0 {
				if err := json.Unmarshal(p.Arguments, &args); err != nil {
					return nil, fmt.Errorf("anthropic: tool_call %s arguments: %w", p.ToolCallID, err)
				}
			}
			blocks = append(blocks, sdk.NewToolUseBlock(p.ToolCallID, args, p.ToolName))
		case turn.ChatContentToolResult:
			blocks = append(blocks, sdk.NewToolResultBlock(p.ToolCallID, string(p.Result), p.IsError))
		}
	}
	return blocks, nil
}

func anthropicInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

// anthropicAccumulator folds a Messages streaming event sequence into
// ChatDelta callbacks plus a final turn.ChatResult, the way
// anthropicChunkProcessor folds events into model.Chunks.
type anthropicAccumulator struct {
	onDelta func(turn.ChatDelta)

	text       strings.Builder
	toolBlocks map[int64]*pendingToolCall

	content      []turn.ChatContentPart
	inputTokens  int
	outputTokens int
}

type pendingToolCall struct {
	id        string
	name      string
	fragments strings.Builder
}

func newAnthropicAccumulator(onDelta func(turn.ChatDelta)) *anthropicAccumulator {
	return &anthropicAccumulator{onDelta: onDelta, toolBlocks: make(map[int64]*pendingToolCall)}
}

func (a *anthropicAccumulator) handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.ContentBlockStartEvent:
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			a.toolBlocks[ev.Index] = &pendingToolCall{id: toolUse.ID, name: toolUse.Name}
		}
	case sdk.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			a.text.WriteString(delta.Text)
			if a.onDelta != nil {
				a.onDelta(turn.ChatDelta{Text: delta.Text})
			}
		case sdk.InputJSONDelta:
			if tb := a.toolBlocks[ev.Index]; tb != nil {
				tb.fragments.WriteString(delta.PartialJSON)
			}
		}
	case sdk.ContentBlockStopEvent:
		if tb, ok := a.toolBlocks[ev.Index]; ok {
			delete(a.toolBlocks, ev.Index)
			args := tb.fragments.String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			a.content = append(a.content, turn.ChatContentPart{
				Kind:       turn.ChatContentToolCall,
				ToolCallID: tb.id,
				ToolName:   tb.name,
				Arguments:  json.RawMessage(args),
			})
		}
	case sdk.MessageDeltaEvent:
		a.outputTokens += int(ev.Usage.OutputTokens)
	case sdk.MessageStartEvent:
		a.inputTokens += int(ev.Message.Usage.InputTokens)
	}
	return nil
}

func (a *anthropicAccumulator) result() *turn.ChatResult {
	var content []turn.ChatContentPart
	if s := a.text.String(); s != "" {
		content = append(content, turn.ChatContentPart{Kind: turn.ChatContentText, Text: s})
	}
	content = append(content, a.content...)
	return &turn.ChatResult{Content: content, InputTokens: a.inputTokens, OutputTokens: a.outputTokens}
}

func classifyAnthropicError(err error) *turn.ModelDriverError {
	var apiErr *sdk.Error
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
