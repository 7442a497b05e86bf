// Package mcpserver exposes the adapter tool registry over the Model
// Context Protocol so external MCP clients can call the same backends the
// specialists use.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/tools"
)

type Config struct {
	Name     string
	Version  string
	Registry *tools.Registry
}

type Server struct {
	mcpServer *server.MCPServer
	registry  *tools.Registry
}

func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Name == "" {
		cfg.Name = "opsmind"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	s := &Server{mcpServer: mcpServer, registry: cfg.Registry}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) registerTools() error {
	log := logging.GetLogger("mcpserver")
	for _, name := range s.registry.Names() {
		tool, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		def := tool.Definition()
		schema := def.JSONSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		schemaJSON, err := json.Marshal(schema)
		if err != nil {
			return fmt.Errorf("failed to marshal schema for tool %q: %w", name, err)
		}
		s.mcpServer.AddTool(
			mcp.NewToolWithRawSchema(def.Name, def.Description, schemaJSON),
			toolHandler(tool),
		)
		log.Debug("exposed tool over mcp", "tool", def.Name)
	}
	return nil
}

func toolHandler(tool tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		result, err := tool.Invoke(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tool execution failed: %v", err)), nil
		}
		if !result.Success {
			return mcp.NewToolResultError(result.Error), nil
		}

		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

// ServeStdio blocks serving the MCP protocol over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer exposes the underlying mcp-go server for alternate transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
