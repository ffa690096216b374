package toolexecutor

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/turnengine/core/pkg/turn"
)

// argumentValidator compiles a tool's JSON Schema once and validates
// arguments against it on every Execute call, following
// validatePayloadJSONAgainstSchema's compile-then-validate shape but
// hoisting the compile step out of the hot path since a tool's schema
// never changes after it is registered.
type argumentValidator struct {
	schema *jsonschema.Schema
}

// newArgumentValidator compiles raw (a JSON Schema document) into a
// reusable validator. A nil/empty schema means the tool takes no
// arguments and accepts nothing to validate against.
func newArgumentValidator(name string, raw json.RawMessage) (*argumentValidator, error) {
	if len(raw) == 0 {
		return &argumentValidator{}, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("toolexecutor: unmarshaling %s schema: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("toolexecutor: adding %s schema resource: %w", name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("toolexecutor: compiling %s schema: %w", name, err)
	}
	return &argumentValidator{schema: schema}, nil
}

// Validate checks arguments against the compiled schema, returning a
// turn.ToolExecutorError classified as ToolErrInvalidArguments on
// failure, covering malformed or missing tool-call arguments.
func (v *argumentValidator) Validate(arguments json.RawMessage) error {
	if v.schema == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(arguments, &doc); err != nil {
		return &turn.ToolExecutorError{
			Kind:    turn.ToolErrInvalidArguments,
			Message: "arguments are not valid JSON",
			Cause:   err,
		}
	}
	if err := v.schema.Validate(doc); err != nil {
		return &turn.ToolExecutorError{
			Kind:    turn.ToolErrInvalidArguments,
			Message: err.Error(),
			Cause:   err,
		}
	}
	return nil
}
