// Package diagnostic turns raw Python error text into structured, learner-facing feedback.
package diagnostic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Category classifies a failure.
type Category string

const (
	CategorySyntax             Category = "syntax"
	CategoryUndefinedReference Category = "undefined-reference"
	CategoryTypeMismatch       Category = "type-mismatch"
	CategoryIndentation        Category = "indentation"
	CategoryAttributeAccess    Category = "attribute-access"
	CategorySecurityViolation  Category = "security-violation"
	CategoryTimeout            Category = "timeout"
	CategoryMemoryLimit        Category = "memory-limit"
	CategoryRuntime            Category = "generic-runtime"
)

// Severity ranks how blocking a failure is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Diagnostic is a structured explanation of a failed run.
type Diagnostic struct {
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Hints    []string `json:"hints,omitempty"`
	Line     int      `json:"line,omitempty"` // 1-based; 0 when unknown
	Name     string   `json:"name,omitempty"` // undefined identifier, when extracted
	Fix      string   `json:"fix,omitempty"`
	Severity Severity `json:"severity"`
}

// Translator maps raw interpreter error text to a Diagnostic.
type Translator interface {
	Translate(raw string) Diagnostic
}

// TranslatorFunc adapts a plain function to Translator.
type TranslatorFunc func(raw string) Diagnostic

func (f TranslatorFunc) Translate(raw string) Diagnostic { return f(raw) }

// Default is the built-in translator.
var Default Translator = TranslatorFunc(Translate)

var (
	lineRe      = regexp.MustCompile(`line (\d+)`)
	undefinedRe = regexp.MustCompile(`name '([^']+)' is not defined`)
)

// Translate classifies raw error text. It is total: any input, including
// the empty string, yields a Diagnostic.
func Translate(raw string) Diagnostic {
	var d Diagnostic
	switch {
	case strings.Contains(raw, "SyntaxError"):
		d = syntaxError(raw)
	case strings.Contains(raw, "NameError"):
		d = nameError(raw)
	case strings.Contains(raw, "TypeError"):
		d = typeError()
	case strings.Contains(raw, "IndentationError"), strings.Contains(raw, "TabError"):
		d = indentationError()
	case strings.Contains(raw, "AttributeError"):
		d = attributeError()
	default:
		d = runtimeError()
	}
	d.Line = extractLine(raw)
	return d
}

func syntaxError(raw string) Diagnostic {
	d := Diagnostic{
		Category: CategorySyntax,
		Title:    "The Arcane Glyph Falters",
		Message:  "The incantation breaks with forbidden runes",
		Severity: SeverityCritical,
	}
	switch {
	case strings.Contains(raw, "invalid character") || hasCurlyQuote(raw):
		d.Hints = []string{
			"You've used curly quotes instead of the straight ASCII quotes",
			"The Oracle only understands straight quotes typed from your keyboard",
		}
		d.Fix = `Replace curly quotes with straight quotes: " and '`
	case strings.Contains(raw, "expected ':'") || strings.Contains(raw, "invalid syntax"):
		d.Hints = []string{
			"Every def, if, for and while line must end with a colon (:)",
			"The structure is: def spell_name(args):",
		}
		d.Fix = "Add a colon at the end of the line that opens the block"
	case strings.Contains(raw, "unexpected EOF") || strings.Contains(raw, "was never closed"):
		d.Hints = []string{
			"The spell is incomplete and the Oracle awaits closure",
			"Check that every bracket is closed and every function has a body (even if just 'pass')",
		}
		d.Fix = "Close any open brackets or add code inside your function"
	}
	return d
}

func hasCurlyQuote(raw string) bool {
	for _, cp := range []string{"U+201C", "U+201D", "U+2018", "U+2019"} {
		if strings.Contains(raw, cp) {
			return true
		}
	}
	return false
}

func nameError(raw string) Diagnostic {
	d := Diagnostic{
		Category: CategoryUndefinedReference,
		Title:    "Echo in the Void",
		Message:  "An undefined essence calls out",
		Hints: []string{
			"This name has not been bound to anything yet",
			"Did you forget to define a variable or function?",
			"Check your spelling: names are case-sensitive",
		},
		Severity: SeverityHigh,
	}
	if m := undefinedRe.FindStringSubmatch(raw); m != nil {
		d.Name = m[1]
		d.Message = fmt.Sprintf("The name '%s' exists not in this realm", m[1])
	}
	return d
}

func typeError() Diagnostic {
	return Diagnostic{
		Category: CategoryTypeMismatch,
		Title:    "Rune Mismatch",
		Message:  "The elements refuse to combine in this configuration",
		Hints: []string{
			"Different types cannot be merged without transformation",
			"Use str(), int(), or float() to convert between forms",
			"Inputs arrive as strings; convert them before doing arithmetic",
		},
		Severity: SeverityMedium,
	}
}

func indentationError() Diagnostic {
	return Diagnostic{
		Category: CategoryIndentation,
		Title:    "Scroll Misalignment",
		Message:  "The sacred geometry has been disturbed",
		Hints: []string{
			"Python demands precise indentation: use 4 spaces",
			"All lines in a block must align",
			"Tabs and spaces cannot be mixed",
		},
		Fix:      "Ensure all indented lines use exactly 4 spaces",
		Severity: SeverityCritical,
	}
}

func attributeError() Diagnostic {
	return Diagnostic{
		Category: CategoryAttributeAccess,
		Title:    "Forbidden Property",
		Message:  "This object does not possess the requested essence",
		Hints: []string{
			"Not all types have the same methods",
			"Use dir(object) to see the available methods",
		},
		Severity: SeverityMedium,
	}
}

func runtimeError() Diagnostic {
	return Diagnostic{
		Category: CategoryRuntime,
		Title:    "Spell Backlash",
		Message:  "An unexpected disturbance ripples through the void",
		Hints: []string{
			"Review your code for unexpected operations",
			"Check that your function returns what it promises",
		},
		Severity: SeverityMedium,
	}
}

func extractLine(raw string) int {
	m := lineRe.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// --- Diagnostics for failures that never reach the interpreter's error output ---

// ForViolation describes a submission rejected before execution.
func ForViolation(match, reason string) Diagnostic {
	msg := fmt.Sprintf("The Oracle refuses to channel '%s'", match)
	if reason != "" {
		msg += ": " + reason
	}
	return Diagnostic{
		Category: CategorySecurityViolation,
		Title:    "Forbidden Magic",
		Message:  msg,
		Hints: []string{
			"Spells may not touch the filesystem, the network, or other processes",
			"Solve the puzzle with plain Python: strings, numbers, lists and loops",
		},
		Fix:      fmt.Sprintf("Remove the use of '%s'", match),
		Severity: SeverityCritical,
	}
}

// ForTimeout describes a run killed at its wall-clock limit.
func ForTimeout(limit time.Duration) Diagnostic {
	return Diagnostic{
		Category: CategoryTimeout,
		Title:    "The Hourglass Empties",
		Message:  fmt.Sprintf("The spell did not finish within %s", limit),
		Hints: []string{
			"Look for a loop whose condition never becomes false",
			"Check that recursive calls move toward a base case",
		},
		Severity: SeverityHigh,
	}
}

// ForMemoryLimit describes a run killed for exceeding its memory limit.
func ForMemoryLimit(limit uint64) Diagnostic {
	return Diagnostic{
		Category: CategoryMemoryLimit,
		Title:    "The Vessel Overflows",
		Message:  fmt.Sprintf("The spell consumed more than %d MiB of memory", limit>>20),
		Hints: []string{
			"Avoid building huge lists or strings",
			"Check for a loop that keeps appending forever",
		},
		Severity: SeverityHigh,
	}
}

// ForOutputLimit describes a run whose output was cut off before a result was seen.
func ForOutputLimit(limit int) Diagnostic {
	return Diagnostic{
		Category: CategoryRuntime,
		Title:    "Too Many Words",
		Message:  fmt.Sprintf("The spell printed more than %d bytes and was cut off", limit),
		Hints: []string{
			"Remove print calls inside loops",
			"Return the answer instead of printing it",
		},
		Severity: SeverityMedium,
	}
}

// ForMissingResult describes a run that exited without reporting a result.
func ForMissingResult() Diagnostic {
	return Diagnostic{
		Category: CategoryRuntime,
		Title:    "Silent Oracle",
		Message:  "The spell ended without returning an answer",
		Hints: []string{
			"Make sure your function is defined at the top level",
			"Avoid code that stops the program early",
		},
		Severity: SeverityMedium,
	}
}
