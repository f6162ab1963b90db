// Package harness wraps a submission in a small Python driver that calls the
// target function once and reports the outcome on a dedicated stdout line.
package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// markerPrefix starts every result line; Build appends a per-program nonce so
// a submission cannot forge the line by printing it.
const markerPrefix = "__ORACLE_RESULT_"

// Filename is the name the program is stored under inside the sandbox.
const Filename = "solution.py"

// ErrInvalidFunction is returned when the target name is not a usable Python identifier.
var ErrInvalidFunction = errors.New("invalid function name")

// ErrNoPayload is returned by ParseOutput when the driver never reported.
var ErrNoPayload = errors.New("no result line in output")

// Payload is the driver's report for one call.
type Payload struct {
	OK        bool   `json:"ok"`
	Output    string `json:"output,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Error     string `json:"error,omitempty"`
	Line      int    `json:"line,omitempty"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true, "assert": true,
	"async": true, "await": true, "break": true, "class": true, "continue": true, "def": true,
	"del": true, "elif": true, "else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true, "is": true,
	"lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// ValidFunctionName reports whether name can be called as a top-level Python function.
func ValidFunctionName(name string) bool {
	return identRe.MatchString(name) && !keywords[name] && !strings.HasPrefix(name, "__oracle_")
}

// Program is a generated driver program.
type Program struct {
	Source    string
	Marker    string
	UserLines int
}

// Build returns a complete program: the user's code verbatim, followed by a
// driver that calls functionName with inputs as string arguments. The user's
// line numbers are unchanged.
func Build(userCode, functionName string, inputs []string) (*Program, error) {
	if !ValidFunctionName(functionName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFunction, functionName)
	}
	args := make([]string, len(inputs))
	for i, in := range inputs {
		lit, err := pyString(in)
		if err != nil {
			return nil, fmt.Errorf("encoding input %d: %w", i, err)
		}
		args[i] = lit
	}
	marker := markerPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + "__:"

	userLines := strings.Count(userCode, "\n") + 1

	var b strings.Builder
	b.WriteString(userCode)
	if !strings.HasSuffix(userCode, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, driver, functionName, strings.Join(args, ", "), userLines, Filename, marker)
	return &Program{Source: b.String(), Marker: marker, UserLines: userLines}, nil
}

// pyString renders s as a double-quoted literal. JSON string syntax is a
// subset of Python's, so json encoding (without HTML escaping) is exact.
func pyString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// driver is appended after the user's code. Verbs: function, args, user line
// count, file name, marker.
const driver = `

def __oracle_run():
    import json as __oracle_json
    import sys as __oracle_sys
    import traceback as __oracle_tb
    try:
        __oracle_value = %[1]s(%[2]s)
        __oracle_payload = {"ok": True, "output": str(__oracle_value)}
    except BaseException as __oracle_exc:
        __oracle_line = 0
        __oracle_where = ""
        for __oracle_frame in __oracle_tb.extract_tb(__oracle_exc.__traceback__):
            if __oracle_frame.filename.endswith(%[4]q) and 0 < __oracle_frame.lineno <= %[3]d:
                __oracle_line = __oracle_frame.lineno
                __oracle_where = __oracle_frame.name
        __oracle_text = "".join(__oracle_tb.format_exception_only(type(__oracle_exc), __oracle_exc)).strip()
        if __oracle_line:
            __oracle_text = 'File "%[4]s", line %%d, in %%s\n%%s' %% (__oracle_line, __oracle_where, __oracle_text)
        __oracle_payload = {
            "ok": False,
            "error_type": type(__oracle_exc).__name__,
            "error": __oracle_text,
            "line": __oracle_line,
        }
    __oracle_sys.stdout.write("\n%[5]s" + __oracle_json.dumps(__oracle_payload) + "\n")
    __oracle_sys.stdout.flush()


__oracle_run()
`

// ParseOutput extracts the driver's payload from stdout. printed is stdout
// with the result line removed, i.e. whatever the submission printed itself.
func (p *Program) ParseOutput(stdout string) (Payload, string, error) {
	idx := strings.LastIndex(stdout, "\n"+p.Marker)
	start := idx + 1
	if idx < 0 {
		if !strings.HasPrefix(stdout, p.Marker) {
			return Payload{}, stdout, ErrNoPayload
		}
		start = 0
	}
	rest := stdout[start+len(p.Marker):]
	line := rest
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		line = rest[:nl]
	}
	printed := stdout[:max(idx, 0)]

	var payload Payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &payload); err != nil {
		return Payload{}, printed, fmt.Errorf("decoding result line: %w", err)
	}
	return payload, printed, nil
}
