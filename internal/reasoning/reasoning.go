// Package reasoning executes one task against a remote reasoning backend.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolCaller runs a tool requested by the backend and returns its text output.
// An error is reported back to the backend as a failed tool result.
type ToolCaller func(ctx context.Context, name string, args json.RawMessage) (string, error)

// Request is one task execution.
type Request struct {
	// System carries the agent persona.
	System string
	// Prompt carries the task instructions and any upstream context.
	Prompt    string
	Knowledge []string
	Tools     []mcp.Tool
	// OutputSchema, when set, asks the backend for a schema-bound object.
	OutputSchema json.RawMessage
	Call         ToolCaller
}

// Result is the raw outcome of a task. Object is set only when the backend
// returned a schema-bound object.
type Result struct {
	Text   string
	Object json.RawMessage
}

type Client interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Result, error)

func (f ClientFunc) Execute(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// SchemaFor derives an inline JSON schema from the Go type of v.
func SchemaFor(v any) (json.RawMessage, error) {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true, Anonymous: true}
	s := r.Reflect(v)
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode output schema: %w", err)
	}
	return data, nil
}
