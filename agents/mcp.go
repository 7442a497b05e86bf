package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opsmind/opsmind/tools"
	"github.com/opsmind/opsmind/types"
)

// MCPGenericAgent invokes any registered tool by name. It backs the
// single-agent shortcut for requests that name a tool directly and mirrors
// what the MCP server exposes to external clients.
type MCPGenericAgent struct {
	registry *tools.Registry
}

func NewMCPGenericAgent(registry *tools.Registry) *MCPGenericAgent {
	return &MCPGenericAgent{registry: registry}
}

func (a *MCPGenericAgent) Name() string { return "mcp-generic" }

func (a *MCPGenericAgent) Description() string {
	return "invoke a registered tool by name with JSON arguments"
}

func (a *MCPGenericAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	toolName := contextString(req.Context, "tool")
	if toolName == "" {
		toolName = a.matchToolName(req.Query)
	}
	if toolName == "" {
		catalog := a.registry.Names()
		return respond(fmt.Sprintf("Name a tool to invoke. Available: %s.", strings.Join(catalog, ", ")),
			map[string]any{"tools": catalog}), nil
	}

	var args json.RawMessage
	if raw, ok := req.Context["arguments"]; ok {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return types.AgentResponse{}, fmt.Errorf("invalid tool arguments: %w", err)
		}
		args = encoded
	}

	result, err := a.registry.Invoke(ctx, toolName, args)
	if err != nil {
		return types.AgentResponse{}, err
	}
	if !result.Success {
		return respond(fmt.Sprintf("Tool %s failed: %s", toolName, result.Error),
			map[string]any{"tool": toolName, "result": result}), nil
	}
	payload, _ := json.MarshalIndent(result.Data, "", "  ")
	content := fmt.Sprintf("Tool %s result:\n```json\n%s\n```", toolName, payload)
	if result.Source == types.SourceSample {
		content += "\n(sample data)"
	}
	return respond(content, map[string]any{"tool": toolName, "result": result}), nil
}

func (a *MCPGenericAgent) matchToolName(query string) string {
	lower := strings.ToLower(query)
	for _, name := range a.registry.Names() {
		if strings.Contains(lower, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}
