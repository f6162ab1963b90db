package diagnostic

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTranslateCategories(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		category Category
		severity Severity
		line     int
	}{
		{"syntax", "  File \"solution.py\", line 1\n    def f()\n           ^\nSyntaxError: expected ':'", CategorySyntax, SeverityCritical, 1},
		{"name", "File \"solution.py\", line 2, in f\nNameError: name 'foo' is not defined", CategoryUndefinedReference, SeverityHigh, 2},
		{"type", "File \"solution.py\", line 3, in f\nTypeError: can only concatenate str (not \"int\") to str", CategoryTypeMismatch, SeverityMedium, 3},
		{"indentation", "  File \"solution.py\", line 2\n    return x\n    ^\nIndentationError: expected an indented block", CategoryIndentation, SeverityCritical, 2},
		{"tab", "  File \"solution.py\", line 4\nTabError: inconsistent use of tabs and spaces in indentation", CategoryIndentation, SeverityCritical, 4},
		{"attribute", "File \"solution.py\", line 2, in f\nAttributeError: 'int' object has no attribute 'upper'", CategoryAttributeAccess, SeverityMedium, 2},
		{"generic", "ZeroDivisionError: division by zero", CategoryRuntime, SeverityMedium, 0},
		{"empty", "", CategoryRuntime, SeverityMedium, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Translate(tt.raw)
			if d.Category != tt.category {
				t.Errorf("category = %q, want %q", d.Category, tt.category)
			}
			if d.Severity != tt.severity {
				t.Errorf("severity = %q, want %q", d.Severity, tt.severity)
			}
			if d.Line != tt.line {
				t.Errorf("line = %d, want %d", d.Line, tt.line)
			}
			if d.Title == "" || d.Message == "" {
				t.Errorf("title/message empty: %+v", d)
			}
		})
	}
}

func TestTranslatePrecedence(t *testing.T) {
	// Syntax wins over anything mentioned later in the text.
	d := Translate("SyntaxError: invalid syntax\nNameError: name 'x' is not defined")
	if d.Category != CategorySyntax {
		t.Errorf("category = %q, want %q", d.Category, CategorySyntax)
	}
	d = Translate("NameError: name 'x' is not defined (while handling TypeError)")
	if d.Category != CategoryUndefinedReference {
		t.Errorf("category = %q, want %q", d.Category, CategoryUndefinedReference)
	}
}

func TestTranslateSyntaxHints(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		fixPart string
	}{
		{"curly quote", "SyntaxError: invalid character '“' (U+201C)", "straight quotes"},
		{"right curly single", "SyntaxError: something about U+2019", "straight quotes"},
		{"missing colon", "SyntaxError: expected ':'", "colon"},
		{"invalid syntax", "SyntaxError: invalid syntax", "colon"},
		{"eof", "SyntaxError: unexpected EOF while parsing", "brackets"},
		{"never closed", "SyntaxError: '(' was never closed", "brackets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Translate(tt.raw)
			if !strings.Contains(d.Fix, tt.fixPart) {
				t.Errorf("fix = %q, want it to mention %q", d.Fix, tt.fixPart)
			}
			if len(d.Hints) == 0 {
				t.Error("expected hints")
			}
		})
	}

	d := Translate("SyntaxError: f-string: empty expression not allowed")
	if d.Fix != "" || len(d.Hints) != 0 {
		t.Errorf("unrecognized syntax error got hints %v fix %q", d.Hints, d.Fix)
	}
}

func TestTranslateUndefinedName(t *testing.T) {
	got := Translate("File \"solution.py\", line 2, in get_length\nNameError: name 'lenght' is not defined")
	want := Diagnostic{
		Category: CategoryUndefinedReference,
		Title:    "Echo in the Void",
		Message:  "The name 'lenght' exists not in this realm",
		Line:     2,
		Name:     "lenght",
		Severity: SeverityHigh,
	}
	if diff := cmp.Diff(want, got, cmpIgnoreHints); diff != "" {
		t.Errorf("Translate mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateFirstLineWins(t *testing.T) {
	d := Translate("line 7 then line 9\nTypeError: bad")
	if d.Line != 7 {
		t.Errorf("line = %d, want 7", d.Line)
	}
}

func TestTranslatorFunc(t *testing.T) {
	var tr Translator = TranslatorFunc(func(string) Diagnostic {
		return Diagnostic{Category: CategoryRuntime, Title: "custom"}
	})
	if got := tr.Translate("SyntaxError").Title; got != "custom" {
		t.Errorf("title = %q, want custom", got)
	}
	if got := Default.Translate("SyntaxError").Category; got != CategorySyntax {
		t.Errorf("default category = %q", got)
	}
}

func TestConstructors(t *testing.T) {
	v := ForViolation("import os", "filesystem access")
	if v.Category != CategorySecurityViolation || v.Severity != SeverityCritical {
		t.Errorf("violation = %+v", v)
	}
	if !strings.Contains(v.Message, "import os") {
		t.Errorf("violation message = %q", v.Message)
	}

	to := ForTimeout(5 * time.Second)
	if to.Category != CategoryTimeout || !strings.Contains(to.Message, "5s") {
		t.Errorf("timeout = %+v", to)
	}

	mem := ForMemoryLimit(256 << 20)
	if mem.Category != CategoryMemoryLimit || !strings.Contains(mem.Message, "256 MiB") {
		t.Errorf("memory = %+v", mem)
	}

	if ForOutputLimit(1024).Category != CategoryRuntime {
		t.Error("output limit should be a runtime diagnostic")
	}
	if ForMissingResult().Category != CategoryRuntime {
		t.Error("missing result should be a runtime diagnostic")
	}
}

var cmpIgnoreHints = cmp.FilterPath(func(p cmp.Path) bool {
	return p.String() == "Hints"
}, cmp.Ignore())
