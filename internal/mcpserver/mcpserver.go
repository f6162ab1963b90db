// Package mcpserver exposes the level catalog and the evaluator as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
)

const maxResultLen = 4000

// Server holds the state shared by the tool handlers.
type Server struct {
	catalog *level.Catalog
	eval    *evaluator.Evaluator
	log     *zap.Logger
}

// New creates a tool server over catalog and eval.
func New(catalog *level.Catalog, eval *evaluator.Evaluator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{catalog: catalog, eval: eval, log: log.Named("mcp")}
}

// MCPServer builds the mcp-go server with every tool registered.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer("oracle", version)

	srv.AddTool(mcp.Tool{
		Name:        "list_levels",
		Description: "List every puzzle level with its number, id, title, difficulty and target function.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}, s.handleListLevels)

	srv.AddTool(mcp.Tool{
		Name:        "describe_level",
		Description: "Show a level's description, target function, example and starter code. Never reveals the solution.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"level": map[string]any{
					"type":        "string",
					"description": "Level id, number, or unique id prefix",
				},
			},
			Required: []string{"level"},
		},
	}, s.handleDescribeLevel)

	srv.AddTool(mcp.Tool{
		Name:        "evaluate_submission",
		Description: "Run Python code against a level's hidden test cases in a sandbox and report one verdict per test.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"level": map[string]any{
					"type":        "string",
					"description": "Level id, number, or unique id prefix",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Python source that defines the level's target function",
				},
			},
			Required: []string{"level", "code"},
		},
	}, s.handleEvaluate)

	return srv
}

// ServeStdio serves the tools over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio(version string) error {
	return server.ServeStdio(s.MCPServer(version))
}

func (s *Server) handleListLevels(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	for _, l := range s.catalog.All() {
		fmt.Fprintf(&b, "%2d  %-22s %-30s %-5s %s()\n", l.Number, l.ID, l.Title, l.Difficulty.Stars(), l.FunctionName)
	}
	return textResult(b.String()), nil
}

func (s *Server) handleDescribeLevel(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	ref, _ := args["level"].(string)
	if ref == "" {
		return errResult("error: 'level' is required"), nil
	}
	l, err := s.catalog.Get(ref)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Level %d: %s (%s)\n", l.Number, l.Title, l.Difficulty)
	fmt.Fprintf(&b, "Concept: %s\n\n%s\n", l.Concept, strings.TrimSpace(l.Description))
	fmt.Fprintf(&b, "Function: %s\n", l.FunctionName)
	fmt.Fprintf(&b, "All inputs are passed as strings.\n")
	if l.Example != "" {
		fmt.Fprintf(&b, "\nExample:\n%s\n", strings.TrimRight(l.Example, "\n"))
	}
	fmt.Fprintf(&b, "\nStarter:\n%s", l.StarterCode())
	return textResult(b.String()), nil
}

func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}
	ref, _ := args["level"].(string)
	code, _ := args["code"].(string)
	if ref == "" || code == "" {
		return errResult("error: 'level' and 'code' are required"), nil
	}

	l, err := s.catalog.Get(ref)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	report, err := s.eval.Evaluate(ctx, code, l.FunctionName, l.TestCases)
	if err != nil {
		s.log.Error("evaluation failed", zap.String("level", l.ID), zap.Error(err))
		if errors.Is(err, evaluator.ErrEnvironment) {
			return errResult("error: the sandbox is unavailable: " + err.Error()), nil
		}
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	text := report.Summary()
	if len(text) > maxResultLen {
		text = text[:maxResultLen] + "\n... (output truncated)"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: report.Status != evaluator.StatusPassed,
	}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
