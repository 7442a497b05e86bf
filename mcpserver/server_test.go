package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opsmind/opsmind/tools"
	"github.com/opsmind/opsmind/types"
)

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewFuncTool("query_logs", "query the log store", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
	}, func(_ context.Context, args json.RawMessage) (types.ToolResult, error) {
		var in struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return types.ToolResult{}, err
		}
		if in.Query == "" {
			return types.ErrResult(errors.New("query is required")), nil
		}
		return types.OkResult(map[string]any{"lines": 3}), nil
	}))
	return registry
}

func TestNew_RequiresRegistry(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without registry")
	}
}

func TestNew_RegistersTools(t *testing.T) {
	srv, err := New(Config{Name: "opsmind", Version: "test", Registry: testRegistry(t)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if srv.MCPServer() == nil {
		t.Fatal("underlying mcp server is nil")
	}
}

func TestToolHandler(t *testing.T) {
	registry := testRegistry(t)
	tool, _ := registry.Get("query_logs")
	handler := toolHandler(tool)

	request := mcp.CallToolRequest{}
	request.Params.Name = "query_logs"
	request.Params.Arguments = map[string]any{"query": `{service="payment"}`}

	result, err := handler(context.Background(), request)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}

	request.Params.Arguments = map[string]any{}
	result, err = handler(context.Background(), request)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing query")
	}
}
