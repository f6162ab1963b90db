package evaluator

import (
	"testing"
	"time"

	"github.com/michaelbrown/oracle/internal/diagnostic"
	"github.com/michaelbrown/oracle/internal/harness"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/sandbox"
)

const testMarker = "__ORACLE_RESULT_test__:"

func TestInterpret(t *testing.T) {
	prog := &harness.Program{Marker: testMarker, UserLines: 3}
	tc := level.TestCase{Inputs: []string{"abc"}, ExpectedOutput: "3"}

	tests := []struct {
		name       string
		res        sandbox.ExecResult
		passed     bool
		actual     string
		printed    string
		category   diagnostic.Category
		wantLine   int
		noDiagnose bool
	}{
		{
			name:       "pass",
			res:        sandbox.ExecResult{Stdout: "\n" + testMarker + `{"ok":true,"output":"3"}` + "\n"},
			passed:     true,
			actual:     "3",
			noDiagnose: true,
		},
		{
			name:       "pass with surrounding whitespace",
			res:        sandbox.ExecResult{Stdout: "hello\n" + testMarker + `{"ok":true,"output":" 3\n"}` + "\n"},
			passed:     true,
			actual:     " 3\n",
			printed:    "hello",
			noDiagnose: true,
		},
		{
			name:       "wrong answer",
			res:        sandbox.ExecResult{Stdout: "\n" + testMarker + `{"ok":true,"output":"4"}` + "\n"},
			actual:     "4",
			noDiagnose: true,
		},
		{
			name:       "right answer but non-zero exit",
			res:        sandbox.ExecResult{Stdout: "\n" + testMarker + `{"ok":true,"output":"3"}` + "\n", ExitCode: 1},
			actual:     "3",
			noDiagnose: true,
		},
		{
			name: "raised error",
			res: sandbox.ExecResult{Stdout: "\n" + testMarker +
				`{"ok":false,"error_type":"NameError","error":"File \"solution.py\", line 2, in f\nNameError: name 'x' is not defined","line":2}` + "\n"},
			category: diagnostic.CategoryUndefinedReference,
			wantLine: 2,
		},
		{
			name: "raised error line from payload",
			res: sandbox.ExecResult{Stdout: "\n" + testMarker +
				`{"ok":false,"error_type":"ValueError","error":"ValueError: bad","line":3}` + "\n"},
			category: diagnostic.CategoryRuntime,
			wantLine: 3,
		},
		{
			name: "syntax error on stderr",
			res: sandbox.ExecResult{
				Stderr:   "  File \"solution.py\", line 1\n    def f(\n         ^\nSyntaxError: '(' was never closed\n",
				ExitCode: 1,
			},
			category: diagnostic.CategorySyntax,
			wantLine: 1,
		},
		{
			name:     "timeout",
			res:      sandbox.ExecResult{State: sandbox.StateTimedOut, Timeout: time.Second, ExitCode: -1},
			category: diagnostic.CategoryTimeout,
		},
		{
			name: "timeout wins over payload",
			res: sandbox.ExecResult{
				Stdout: "\n" + testMarker + `{"ok":true,"output":"3"}` + "\n",
				State:  sandbox.StateTimedOut,
			},
			category: diagnostic.CategoryTimeout,
		},
		{
			name:     "memory",
			res:      sandbox.ExecResult{State: sandbox.StateMemoryExceeded, MemoryLimit: 64 << 20, ExitCode: -1},
			category: diagnostic.CategoryMemoryLimit,
		},
		{
			name:     "truncated before result",
			res:      sandbox.ExecResult{Stdout: "xxxx", Truncated: true, OutputLimit: 4},
			printed:  "xxxx",
			category: diagnostic.CategoryRuntime,
		},
		{
			name:     "silent exit",
			res:      sandbox.ExecResult{Stdout: "bye\n"},
			printed:  "bye\n",
			category: diagnostic.CategoryRuntime,
		},
		{
			name:     "malformed payload",
			res:      sandbox.ExecResult{Stdout: "\n" + testMarker + "{not json\n"},
			category: diagnostic.CategoryRuntime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := interpret(prog, &tt.res, tc, diagnostic.Default)
			if v.Passed != tt.passed {
				t.Errorf("Passed = %v, want %v", v.Passed, tt.passed)
			}
			if tt.actual != "" {
				if v.ActualOutput == nil || *v.ActualOutput != tt.actual {
					t.Errorf("ActualOutput = %v, want %q", v.ActualOutput, tt.actual)
				}
			}
			if v.Printed != tt.printed {
				t.Errorf("Printed = %q, want %q", v.Printed, tt.printed)
			}
			if tt.noDiagnose {
				if v.Diagnostic != nil {
					t.Errorf("unexpected diagnostic %+v", v.Diagnostic)
				}
				return
			}
			if v.Diagnostic == nil {
				t.Fatal("missing diagnostic")
			}
			if v.Diagnostic.Category != tt.category {
				t.Errorf("category = %s, want %s", v.Diagnostic.Category, tt.category)
			}
			if v.Diagnostic.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", v.Diagnostic.Line, tt.wantLine)
			}
		})
	}
}

func TestInterpretUsesTranslator(t *testing.T) {
	prog := &harness.Program{Marker: testMarker}
	var got string
	tr := diagnostic.TranslatorFunc(func(raw string) diagnostic.Diagnostic {
		got = raw
		return diagnostic.Diagnostic{Category: "custom"}
	})
	res := &sandbox.ExecResult{Stdout: "\n" + testMarker + `{"ok":false,"error":"ZeroDivisionError: division by zero"}` + "\n"}
	v := interpret(prog, res, level.TestCase{}, tr)
	if got != "ZeroDivisionError: division by zero" {
		t.Errorf("translator saw %q", got)
	}
	if v.Diagnostic == nil || v.Diagnostic.Category != "custom" {
		t.Errorf("diagnostic = %+v", v.Diagnostic)
	}
	if v.Error != got {
		t.Errorf("Error = %q", v.Error)
	}
}

func TestInterpretMalformedPayloadUsesTranslator(t *testing.T) {
	prog := &harness.Program{Marker: testMarker}
	calls := 0
	tr := diagnostic.TranslatorFunc(func(string) diagnostic.Diagnostic {
		calls++
		return diagnostic.Diagnostic{Category: "custom"}
	})
	res := &sandbox.ExecResult{Stdout: "\n" + testMarker + "{not json\n"}
	v := interpret(prog, res, level.TestCase{}, tr)
	if calls != 1 || v.Diagnostic == nil || v.Diagnostic.Category != "custom" {
		t.Errorf("calls = %d, diagnostic = %+v", calls, v.Diagnostic)
	}
	if v.Passed || v.Error == "" {
		t.Errorf("verdict = %+v", v)
	}
}
