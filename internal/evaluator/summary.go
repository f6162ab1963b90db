package evaluator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Summary renders the report as plain text for terminals, tool results and
// model prompts.
func (r *Report) Summary() string {
	var b strings.Builder
	switch r.Status {
	case StatusRejected:
		fmt.Fprintf(&b, "Rejected before running: %s\n", r.Rejection.Diagnostic.Message)
		if r.Rejection.Diagnostic.Fix != "" {
			fmt.Fprintf(&b, "  fix: %s\n", r.Rejection.Diagnostic.Fix)
		}
		return b.String()
	case StatusPassed:
		fmt.Fprintf(&b, "All %d tests passed (%s)\n", len(r.Verdicts), r.Elapsed.Round(time.Millisecond))
		return b.String()
	}

	fmt.Fprintf(&b, "%d/%d tests passed\n", r.PassedCount(), len(r.Verdicts))
	for _, v := range r.Verdicts {
		if v.Passed {
			fmt.Fprintf(&b, "test %d: ok\n", v.Index+1)
			continue
		}
		fmt.Fprintf(&b, "test %d: inputs %s, expected %q", v.Index+1, formatInputs(v.TestCase.Inputs), v.TestCase.ExpectedOutput)
		if v.ActualOutput != nil {
			fmt.Fprintf(&b, ", got %q\n", *v.ActualOutput)
			continue
		}
		b.WriteString("\n")
		if d := v.Diagnostic; d != nil {
			fmt.Fprintf(&b, "  %s: %s", d.Title, d.Message)
			if d.Line > 0 {
				fmt.Fprintf(&b, " (line %d)", d.Line)
			}
			b.WriteString("\n")
			for _, h := range d.Hints {
				fmt.Fprintf(&b, "  - %s\n", h)
			}
			if d.Fix != "" {
				fmt.Fprintf(&b, "  fix: %s\n", d.Fix)
			}
		}
	}
	return b.String()
}

func formatInputs(inputs []string) string {
	quoted := make([]string, len(inputs))
	for i, in := range inputs {
		quoted[i] = strconv.Quote(in)
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
