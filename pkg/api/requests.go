package api

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/turnengine/core/pkg/models"
)

// createSessionRequest is the body of POST /sessions.
type createSessionRequest struct {
	AgentID string   `json:"agent_id"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags,omitempty"`
}

func (r createSessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AgentID, validation.Required),
	)
}

func (r createSessionRequest) toModel() models.CreateSessionRequest {
	return models.CreateSessionRequest{AgentID: r.AgentID, Title: r.Title, Tags: r.Tags}
}

// contentPartRequest mirrors models.ContentPart for the wire; only the
// fields relevant to Kind need be set by a caller.
type contentPartRequest struct {
	Kind      string          `json:"kind"`
	Text      string          `json:"text,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	ResultErr string          `json:"result_error,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func (r contentPartRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required, validation.In("text", "tool_call", "tool_result")),
	)
}

func (r contentPartRequest) toModel() models.ContentPart {
	return models.ContentPart{
		Kind:       models.ContentPartKind(r.Kind),
		Text:       r.Text,
		ToolCallID: r.ToolCallID,
		ToolName:   r.ToolName,
		Arguments:  r.Arguments,
		Result:     r.Result,
		ResultErr:  r.ResultErr,
		IsError:    r.IsError,
	}
}

// postMessageRequest is the body of POST /sessions/:id/messages. A plain
// Text shorthand is accepted alongside the fully structured Content list
// so a curl one-liner doesn't have to spell out a content-part envelope.
type postMessageRequest struct {
	Text    string               `json:"text,omitempty"`
	Content []contentPartRequest `json:"content,omitempty"`
}

func (r postMessageRequest) Validate() error {
	if r.Text == "" && len(r.Content) == 0 {
		return validation.Errors{"text": validation.NewError("required", "text or content is required")}
	}
	return validation.ValidateStruct(&r, validation.Field(&r.Content))
}

func (r postMessageRequest) toContentParts() []models.ContentPart {
	if len(r.Content) > 0 {
		parts := make([]models.ContentPart, len(r.Content))
		for i, p := range r.Content {
			parts[i] = p.toModel()
		}
		return parts
	}
	return []models.ContentPart{{Kind: models.ContentText, Text: r.Text}}
}

// registerWorkerRequest is the body of POST /operator/workers.
type registerWorkerRequest struct {
	ActivityTypes  []string `json:"activity_types"`
	MaxConcurrency int      `json:"max_concurrency"`
	Hostname       string   `json:"hostname"`
	WorkerGroup    string   `json:"worker_group,omitempty"`
}

func (r registerWorkerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ActivityTypes, validation.Required),
		validation.Field(&r.MaxConcurrency, validation.Required, validation.Min(1)),
		validation.Field(&r.Hostname, validation.Required),
	)
}

func (r registerWorkerRequest) toModel() models.RegisterWorkerRequest {
	types := make([]models.TaskType, len(r.ActivityTypes))
	for i, t := range r.ActivityTypes {
		types[i] = models.TaskType(t)
	}
	return models.RegisterWorkerRequest{
		ActivityTypes:  types,
		MaxConcurrency: r.MaxConcurrency,
		Hostname:       r.Hostname,
		WorkerGroup:    r.WorkerGroup,
	}
}
