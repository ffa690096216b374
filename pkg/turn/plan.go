package turn

import (
	"encoding/json"
	"fmt"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/models"
)

// buildMessages reconstructs the conversation ModelDriver.Chat sees from a
// session's ordered events: message.user and message.agent become
// user/assistant turns; a message.agent carrying tool_call parts is
// followed, once its calls complete, by a synthetic tool-role message
// folding in the matching tool.call_completed results as
// message.tool_result content parts in a new context snapshot. Nothing
// here is persisted; it is rebuilt fresh from the log on every Plan.
func buildMessages(events []*models.Event) ([]ChatMessage, error) {
	// Tool results always land after the message.agent that requested them
	// (higher sequence), so they're collected in a first pass before
	// messages are built, rather than threaded through in sequence order.
	results := make(map[string]models.ToolCallCompletedData) // tool_call_id -> result
	for _, e := range events {
		if e.Type != models.EventToolCallCompleted {
			continue
		}
		var data models.ToolCallCompletedData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return nil, fmt.Errorf("turn: unmarshaling tool.call_completed event %s: %w", e.ID, err)
		}
		results[data.ToolCallID] = data
	}

	var messages []ChatMessage
	for _, e := range events {
		if e.Type != models.EventMessageUser && e.Type != models.EventMessageAgent {
			continue
		}
		var data models.MessageEventData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return nil, fmt.Errorf("turn: unmarshaling %s event %s: %w", e.Type, e.ID, err)
		}
		role := RoleUser
		if e.Type == models.EventMessageAgent {
			role = RoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: convertContentParts(data.Content)})

		if role == RoleAssistant {
			if toolMsg, ok := toolResultMessage(data.Content, results); ok {
				messages = append(messages, toolMsg)
			}
		}
	}
	return messages, nil
}

// toolResultMessage builds the RoleTool message following an assistant
// message that issued tool calls, once every one of those calls has a
// completed result available. Returns ok=false if any call is still
// outstanding (Plan is being invoked mid-turn, before AwaitTools fanned in).
func toolResultMessage(assistantContent []models.ContentPart, results map[string]models.ToolCallCompletedData) (ChatMessage, bool) {
	var parts []ChatContentPart
	for _, part := range assistantContent {
		if part.Kind != models.ContentToolCall {
			continue
		}
		result, ok := results[part.ToolCallID]
		if !ok {
			return ChatMessage{}, false
		}
		parts = append(parts, ChatContentPart{
			Kind:       ChatContentToolResult,
			ToolCallID: result.ToolCallID,
			Result:     result.Result,
			IsError:    result.IsError,
		})
	}
	if len(parts) == 0 {
		return ChatMessage{}, false
	}
	return ChatMessage{Role: RoleTool, Content: parts}, true
}

func convertContentParts(parts []models.ContentPart) []ChatContentPart {
	out := make([]ChatContentPart, len(parts))
	for i, p := range parts {
		out[i] = ChatContentPart{
			Kind:       ChatContentPartKind(p.Kind),
			Text:       p.Text,
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Arguments:  p.Arguments,
			Result:     p.Result,
			IsError:    p.IsError,
		}
	}
	return out
}

// buildChatRequest assembles the full ModelDriver request: the agent's
// system prompt (as a leading system message), the reconstructed
// conversation, and tool schemas for its enabled capabilities, in the
// deterministic order SortedCapabilities fixes.
func buildChatRequest(agent *config.AgentConfig, model string, history []ChatMessage, tools ToolRegistry) ChatRequest {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{
		Role:    RoleSystem,
		Content: []ChatContentPart{{Kind: ChatContentText, Text: agent.SystemPrompt}},
	})
	messages = append(messages, history...)

	var names []string
	for _, ref := range agent.SortedCapabilities() {
		names = append(names, ref.Name)
	}
	var schemas []ToolSchema
	if tools != nil && len(names) > 0 {
		schemas = tools.Schemas(names)
	}

	return ChatRequest{
		Model:    model,
		Messages: messages,
		Tools:    schemas,
	}
}
