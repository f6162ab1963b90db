// python-docs serves Python reference documentation for builtins and a few
// standard modules as an MCP tool over stdio. pydoc runs inside the same
// sandbox that judges submissions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/oracle/internal/app"
	"github.com/michaelbrown/oracle/internal/config"
	"github.com/michaelbrown/oracle/internal/logging"
	"github.com/michaelbrown/oracle/internal/sandbox"
)

const (
	maxDocLen  = 4000
	docTimeout = 3 * time.Second
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Top-level names pydoc may resolve. Everything here is a builtin or a
// side-effect-free module.
var allowedRoots = map[string]bool{
	"abs": true, "all": true, "any": true, "bool": true, "dict": true, "enumerate": true,
	"filter": true, "float": true, "int": true, "isinstance": true, "len": true, "list": true,
	"map": true, "max": true, "min": true, "print": true, "range": true, "reversed": true,
	"round": true, "set": true, "sorted": true, "str": true, "sum": true, "tuple": true,
	"type": true, "zip": true,
	"collections": true, "functools": true, "itertools": true, "math": true, "re": true, "string": true,
}

const docScript = `import pydoc
print(pydoc.render_doc(%s, renderer=pydoc.plaintext))
`

type docsServer struct {
	sb sandbox.Sandbox
}

func main() {
	cfgPath := flag.String("config", "", "config file (default: ./oracle.yaml or ~/.oracle/oracle.yaml)")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "python-docs: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: "stderr"})
	if err != nil {
		return err
	}
	defer log.Sync()

	sb, err := sandbox.New(cfg.Sandbox.Backend, cfg.Policy(), log)
	if err != nil {
		return err
	}
	return server.ServeStdio(newMCPServer(&docsServer{sb: sb}))
}

func newMCPServer(d *docsServer) *server.MCPServer {
	s := server.NewMCPServer("oracle-python-docs", app.Version)

	names := make([]string, 0, len(allowedRoots))
	for n := range allowedRoots {
		names = append(names, n)
	}
	sort.Strings(names)

	s.AddTool(mcp.Tool{
		Name:        "python_docs",
		Description: "Show Python reference documentation for a builtin or standard module member. Available roots: " + strings.Join(names, ", ") + ".",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Dotted name, e.g. len, str.split, math.sqrt",
				},
			},
			Required: []string{"name"},
		},
	}, d.handlePythonDocs)
	return s
}

func (d *docsServer) handlePythonDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	name, _ := args["name"].(string)
	name = strings.TrimSpace(name)

	if !namePattern.MatchString(name) {
		return errResult(fmt.Sprintf("error: %q is not a dotted Python name", name)), nil
	}
	root, _, _ := strings.Cut(name, ".")
	if !allowedRoots[root] {
		return errResult(fmt.Sprintf("error: documentation for %q is not available", root)), nil
	}

	literal, _ := json.Marshal(name)
	res, err := d.sb.Exec(ctx, sandbox.ExecOpts{
		Code:     fmt.Sprintf(docScript, literal),
		Filename: "docs.py",
		Timeout:  docTimeout,
	})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	if res.ExitCode != 0 || res.Stdout == "" {
		msg := strings.TrimSpace(res.Stderr)
		if lines := strings.Split(msg, "\n"); len(lines) > 0 {
			msg = lines[len(lines)-1]
		}
		return errResult(fmt.Sprintf("error: no documentation for %s: %s", name, msg)), nil
	}

	text := res.Stdout
	if len(text) > maxDocLen {
		text = text[:maxDocLen] + "\n... (documentation truncated)"
	}
	return mcp.NewToolResultText(text), nil
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
