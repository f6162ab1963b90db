package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/oracle/internal/llm"
)

const (
	// ClientName identifies oracle to the tool servers it launches.
	ClientName    = "oracle"
	clientVersion = "0.1.0"
)

// MCPConnection is one running tool server subprocess and the tools it
// advertised at startup.
type MCPConnection struct {
	name    string
	client  *client.Client
	tools   []mcp.Tool
	timeout time.Duration
}

// NewMCPConnection starts the server, performs the MCP handshake and lists
// its tools. The subprocess is stopped again if any step fails.
func NewMCPConnection(ctx context.Context, name string, cfg ToolServerConfig, env []string) (*MCPConnection, error) {
	c, err := client.NewStdioMCPClient(cfg.Binary, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("starting MCP server %s (%s): %w", name, cfg.Binary, err)
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: clientVersion,
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing MCP server %s: %w", name, err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("listing tools from %s: %w", name, err)
	}

	return &MCPConnection{
		name:    name,
		client:  c,
		tools:   result.Tools,
		timeout: cfg.callTimeout(),
	}, nil
}

// ToolDefs returns the server's tools in the shape the tutor hands the model.
func (mc *MCPConnection) ToolDefs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(mc.tools))
	for _, t := range mc.tools {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaParams(t.InputSchema),
		})
	}
	return defs
}

func schemaParams(s mcp.ToolInputSchema) map[string]any {
	params := map[string]any{"type": s.Type}
	if s.Properties != nil {
		params["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		params["required"] = s.Required
	}
	return params
}

// CallTool runs a tool and joins its text content. A result flagged IsError
// is returned as text prefixed with "error: " rather than as a Go error;
// only transport failures and timeouts are errors.
func (mc *MCPConnection) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, mc.timeout)
	defer cancel()

	result, err := mc.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("tool %s on %s timed out after %s", name, mc.name, mc.timeout)
		}
		return "", fmt.Errorf("calling tool %s on %s: %w", name, mc.name, err)
	}

	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}

	text := strings.Join(parts, "\n")
	if result.IsError {
		return "error: " + text, nil
	}
	return text, nil
}

func (mc *MCPConnection) ToolNames() []string {
	names := make([]string, len(mc.tools))
	for i, t := range mc.tools {
		names[i] = t.Name
	}
	return names
}

func (mc *MCPConnection) Close() {
	mc.client.Close()
}
