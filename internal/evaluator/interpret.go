package evaluator

import (
	"errors"
	"strings"

	"github.com/michaelbrown/oracle/internal/diagnostic"
	"github.com/michaelbrown/oracle/internal/harness"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/sandbox"
)

// interpret turns one sandbox run into a verdict. It never panics and always
// attaches a diagnostic to a failed verdict.
func interpret(prog *harness.Program, res *sandbox.ExecResult, tc level.TestCase, tr diagnostic.Translator) Verdict {
	v := Verdict{TestCase: tc, Elapsed: res.Elapsed}
	payload, printed, perr := prog.ParseOutput(res.Stdout)
	v.Printed = printed

	switch res.State {
	case sandbox.StateTimedOut:
		return fail(v, diagnostic.ForTimeout(res.Timeout))
	case sandbox.StateMemoryExceeded:
		return fail(v, diagnostic.ForMemoryLimit(res.MemoryLimit))
	}

	switch {
	case perr == nil && payload.OK:
		out := payload.Output
		v.ActualOutput = &out
		v.Passed = res.ExitCode == 0 && strings.TrimSpace(out) == strings.TrimSpace(tc.ExpectedOutput)
		return v
	case perr == nil:
		v.Error = payload.Error
		d := tr.Translate(payload.Error)
		if d.Line == 0 {
			d.Line = payload.Line
		}
		return fail(v, d)
	case errors.Is(perr, harness.ErrNoPayload):
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			v.Error = stderr
			return fail(v, tr.Translate(stderr))
		}
		if res.Truncated {
			return fail(v, diagnostic.ForOutputLimit(res.OutputLimit))
		}
		return fail(v, diagnostic.ForMissingResult())
	default:
		v.Error = perr.Error()
		return fail(v, tr.Translate(""))
	}
}

func fail(v Verdict, d diagnostic.Diagnostic) Verdict {
	v.Passed = false
	v.Diagnostic = &d
	return v
}
