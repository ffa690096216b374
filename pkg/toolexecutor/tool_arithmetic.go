package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/core/pkg/turn"
)

const addSchemaDoc = `{
	"type": "object",
	"properties": {
		"a": {"type": "number"},
		"b": {"type": "number"}
	},
	"required": ["a", "b"],
	"additionalProperties": false
}`

// AddTool implements the "add" capability: given a=5, b=3, returns 8.
type AddTool struct {
	validator *argumentValidator
}

// NewAddTool compiles add's argument schema once at construction.
func NewAddTool() (*AddTool, error) {
	v, err := newArgumentValidator("add", json.RawMessage(addSchemaDoc))
	if err != nil {
		return nil, err
	}
	return &AddTool{validator: v}, nil
}

func (t *AddTool) Describe() turn.ToolSchema {
	return turn.ToolSchema{
		Name:        "add",
		Description: "Adds two numbers and returns their sum.",
		Parameters:  json.RawMessage(addSchemaDoc),
	}
}

type addArguments struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type addResult struct {
	Sum float64 `json:"sum"`
}

func (t *AddTool) Execute(_ context.Context, _ turn.SessionContext, arguments json.RawMessage) (json.RawMessage, error) {
	if err := t.validator.Validate(arguments); err != nil {
		return nil, err
	}
	var args addArguments
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, &turn.ToolExecutorError{Kind: turn.ToolErrInvalidArguments, Message: "arguments do not match add's shape", Cause: err}
	}
	result, err := json.Marshal(addResult{Sum: args.A + args.B})
	if err != nil {
		return nil, &turn.ToolExecutorError{Kind: turn.ToolErrPermanent, Message: fmt.Sprintf("marshaling result: %v", err), Cause: err}
	}
	return result, nil
}
