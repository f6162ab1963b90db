package evaluator

import (
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/oracle/internal/diagnostic"
	"github.com/michaelbrown/oracle/internal/level"
)

func TestSummary(t *testing.T) {
	four := "4"
	timeout := diagnostic.ForTimeout(5 * time.Second)
	report := &Report{
		Status: StatusFailed,
		Verdicts: []Verdict{
			{Index: 0, Passed: true, TestCase: level.TestCase{Inputs: []string{"abc"}, ExpectedOutput: "3"}},
			{Index: 1, ActualOutput: &four, TestCase: level.TestCase{Inputs: []string{"hello"}, ExpectedOutput: "5"}},
			{Index: 2, Diagnostic: &timeout, TestCase: level.TestCase{Inputs: []string{"a", "b"}, ExpectedOutput: "x"}},
		},
	}
	got := report.Summary()
	for _, want := range []string{
		"1/3 tests passed",
		"test 1: ok",
		`test 2: inputs ("hello"), expected "5", got "4"`,
		`test 3: inputs ("a", "b"), expected "x"`,
		"The Hourglass Empties: The spell did not finish within 5s",
		"  - Look for a loop",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestSummaryPassedAndRejected(t *testing.T) {
	passed := &Report{Status: StatusPassed, Verdicts: []Verdict{{Passed: true}, {Passed: true}}}
	if got := passed.Summary(); !strings.HasPrefix(got, "All 2 tests passed") {
		t.Errorf("passed summary = %q", got)
	}

	rejected := &Report{
		Status:    StatusRejected,
		Rejection: &Rejection{Match: "import os", Diagnostic: diagnostic.ForViolation("import os", "filesystem access")},
	}
	got := rejected.Summary()
	if !strings.Contains(got, "Rejected before running") || !strings.Contains(got, "import os") {
		t.Errorf("rejected summary = %q", got)
	}
}
