package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/oracle/internal/sandbox"
)

type recordingSandbox struct {
	opts sandbox.ExecOpts
	res  *sandbox.ExecResult
	err  error
}

func (r *recordingSandbox) Exec(_ context.Context, opts sandbox.ExecOpts) (*sandbox.ExecResult, error) {
	r.opts = opts
	return r.res, r.err
}

func callDocs(t *testing.T, sb sandbox.Sandbox, name any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = map[string]any{"name": name}
	res, err := (&docsServer{sb: sb}).handlePythonDocs(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n"), res.IsError
}

func TestPythonDocs(t *testing.T) {
	sb := &recordingSandbox{res: &sandbox.ExecResult{Stdout: "Help on built-in function len\n"}}
	text, isErr := callDocs(t, sb, "str.split")
	if isErr || !strings.Contains(text, "Help on") {
		t.Fatalf("result = %q, isError=%v", text, isErr)
	}
	if !strings.Contains(sb.opts.Code, `pydoc.render_doc("str.split"`) || sb.opts.Timeout != docTimeout {
		t.Errorf("exec opts = %+v", sb.opts)
	}
}

func TestPythonDocsRejectsNames(t *testing.T) {
	for _, name := range []any{"os", "os.system", `len"); import os; ("`, "", 42, "subprocess.run"} {
		sb := &recordingSandbox{}
		text, isErr := callDocs(t, sb, name)
		if !isErr || !strings.HasPrefix(text, "error:") {
			t.Errorf("name %v: result = %q", name, text)
		}
		if sb.opts.Code != "" {
			t.Errorf("name %v reached the sandbox", name)
		}
	}
}

func TestPythonDocsFailures(t *testing.T) {
	text, isErr := callDocs(t, &recordingSandbox{err: errors.New("python3 not found")}, "len")
	if !isErr || !strings.Contains(text, "python3 not found") {
		t.Errorf("sandbox error result = %q", text)
	}

	missing := &recordingSandbox{res: &sandbox.ExecResult{
		ExitCode: 1,
		Stderr:   "Traceback (most recent call last):\nImportError: No Python documentation found for 'math.nope'.",
	}}
	text, isErr = callDocs(t, missing, "math.nope")
	if !isErr || !strings.Contains(text, "No Python documentation found") {
		t.Errorf("missing doc result = %q", text)
	}

	long := &recordingSandbox{res: &sandbox.ExecResult{Stdout: strings.Repeat("x", maxDocLen+10)}}
	if text, _ = callDocs(t, long, "list"); !strings.HasSuffix(text, "(documentation truncated)") {
		t.Errorf("long doc not truncated: %d bytes", len(text))
	}
}

func TestPythonDocsServerBuilds(t *testing.T) {
	if s := newMCPServer(&docsServer{sb: &recordingSandbox{}}); s == nil {
		t.Fatal("nil server")
	}
}
