package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsmind/opsmind/types"
)

// Tool is one operation exposed by a backend adapter. Invoke never returns
// a transport error as err when the adapter degraded to sample data; the
// ToolResult carries success, payload, and provenance instead.
type Tool interface {
	Definition() types.ToolDefinition
	Invoke(ctx context.Context, args json.RawMessage) (types.ToolResult, error)
}

type FuncTool struct {
	def types.ToolDefinition
	fn  func(ctx context.Context, args json.RawMessage) (types.ToolResult, error)
}

func NewFuncTool(name, description string, schema map[string]any, fn func(ctx context.Context, args json.RawMessage) (types.ToolResult, error)) *FuncTool {
	return &FuncTool{
		def: types.ToolDefinition{
			Name:        name,
			Description: description,
			JSONSchema:  schema,
		},
		fn: fn,
	}
}

func (t *FuncTool) Definition() types.ToolDefinition {
	return t.def
}

func (t *FuncTool) Invoke(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
	if t.fn == nil {
		return types.ToolResult{}, fmt.Errorf("tool %q has no invoke function", t.def.Name)
	}
	return t.fn(ctx, args)
}
