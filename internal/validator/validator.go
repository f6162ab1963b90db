// Package validator screens submitted source for dangerous constructs before
// anything is executed. Matching is textual; a forbidden word inside a string
// literal or comment is rejected too.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Violation reports the first rule a submission broke.
type Violation struct {
	Rule   string `json:"rule"`
	Match  string `json:"match"`
	Reason string `json:"reason"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("forbidden construct %q (%s: %s)", v.Match, v.Rule, v.Reason)
}

// Rule checks source text. Check returns nil when the rule is satisfied.
type Rule struct {
	Name  string
	Check func(source string) *Violation
}

// Validator applies rules in order and stops at the first hit.
type Validator struct {
	rules []Rule
}

// New creates a validator from explicit rules.
func New(rules ...Rule) *Validator {
	return &Validator{rules: rules}
}

// Default returns a validator with the built-in rule set.
func Default() *Validator {
	return WithBlockedModules()
}

// WithBlockedModules returns the built-in rule set with extra modules added
// to the import denylist.
func WithBlockedModules(extra ...string) *Validator {
	mods := make(map[string]string, len(blockedModules)+len(extra))
	for m, reason := range blockedModules {
		mods[m] = reason
	}
	for _, m := range extra {
		m = strings.TrimSpace(m)
		if m != "" {
			mods[m] = "blocked by operator"
		}
	}
	return New(ImportRule(mods), BuiltinRule(), ReflectionRule())
}

// Validate returns nil when source is acceptable, or a *Violation.
func (v *Validator) Validate(source string) error {
	for _, r := range v.rules {
		if viol := r.Check(source); viol != nil {
			if viol.Rule == "" {
				viol.Rule = r.Name
			}
			return viol
		}
	}
	return nil
}

// Modules lists the built-in denied modules in sorted order.
func Modules() []string {
	out := make([]string, 0, len(blockedModules))
	for m := range blockedModules {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

const (
	reasonFilesystem = "filesystem access"
	reasonProcess    = "process or interpreter control"
	reasonNetwork    = "network access"
	reasonIntrospect = "code loading or introspection"
)

var blockedModules = map[string]string{
	"os":       reasonFilesystem,
	"posix":    reasonFilesystem,
	"nt":       reasonFilesystem,
	"_io":      reasonFilesystem,
	"io":       reasonFilesystem,
	"shutil":   reasonFilesystem,
	"pathlib":  reasonFilesystem,
	"glob":     reasonFilesystem,
	"tempfile": reasonFilesystem,
	"fcntl":    reasonFilesystem,
	"mmap":     reasonFilesystem,

	"sys":              reasonProcess,
	"subprocess":       reasonProcess,
	"_posixsubprocess": reasonProcess,
	"multiprocessing":  reasonProcess,
	"_multiprocessing": reasonProcess,
	"threading":        reasonProcess,
	"_thread":          reasonProcess,
	"concurrent":       reasonProcess,
	"signal":           reasonProcess,
	"_signal":          reasonProcess,
	"pty":              reasonProcess,
	"resource":         reasonProcess,
	"ctypes":           reasonProcess,
	"_ctypes":          reasonProcess,
	"_winapi":          reasonProcess,
	"msvcrt":           reasonProcess,
	"gc":               reasonProcess,

	"socket":    reasonNetwork,
	"_socket":   reasonNetwork,
	"ssl":       reasonNetwork,
	"_ssl":      reasonNetwork,
	"select":    reasonNetwork,
	"urllib":    reasonNetwork,
	"http":      reasonNetwork,
	"ftplib":    reasonNetwork,
	"smtplib":   reasonNetwork,
	"telnetlib": reasonNetwork,
	"requests":  reasonNetwork,

	"importlib":                  reasonIntrospect,
	"_imp":                       reasonIntrospect,
	"_frozen_importlib":          reasonIntrospect,
	"_frozen_importlib_external": reasonIntrospect,
	"runpy":                      reasonIntrospect,
	"zipimport":                  reasonIntrospect,
	"builtins":                   reasonIntrospect,
	"pickle":                     reasonIntrospect,
	"_pickle":                    reasonIntrospect,
	"marshal":                    reasonIntrospect,
	"code":                       reasonIntrospect,
	"codeop":                     reasonIntrospect,
	"inspect":                    reasonIntrospect,
}

// importRe matches "import a, b as c" and "from x import y". Group 1 is the
// from-module, group 2 the imported list.
var importRe = regexp.MustCompile(`(?:\bfrom[ \t]+([\w.]+)[ \t]+)?\bimport[ \t]+([^\n;#]+(?:\\\n[^\n;#]*)*)`)

// ImportRule rejects imports whose top-level package is in mods (module to reason).
func ImportRule(mods map[string]string) Rule {
	return Rule{
		Name: "blocked-import",
		Check: func(source string) *Violation {
			for _, m := range importRe.FindAllStringSubmatch(source, -1) {
				if from := m[1]; from != "" {
					root := rootPackage(from)
					if reason, ok := mods[root]; ok {
						return &Violation{Match: "from " + root + " import", Reason: reason}
					}
					continue
				}
				for _, item := range strings.Split(m[2], ",") {
					fields := strings.Fields(strings.Trim(strings.TrimSpace(item), `()\`))
					if len(fields) == 0 {
						continue
					}
					root := rootPackage(fields[0])
					if reason, ok := mods[root]; ok {
						return &Violation{Match: "import " + root, Reason: reason}
					}
				}
			}
			return nil
		},
	}
}

func rootPackage(name string) string {
	name = strings.TrimLeft(name, ".")
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

var builtinRe = regexp.MustCompile(`(?:^|[^.\w])(eval|exec|compile|open|input|__import__|breakpoint|globals|locals|vars|getattr|help)[ \t]*\(`)

// BuiltinRule rejects direct calls to builtins that load code, touch I/O or
// reach objects by computed name. Method calls such as re.compile( are allowed.
func BuiltinRule() Rule {
	return Rule{
		Name: "blocked-builtin",
		Check: func(source string) *Violation {
			if m := builtinRe.FindStringSubmatch(source); m != nil {
				return &Violation{Match: m[1] + "(", Reason: "dynamic code execution, I/O or dynamic lookup"}
			}
			return nil
		},
	}
}

var reflectionNames = []string{
	"__builtins__", "__subclasses__", "__globals__", "__code__", "__bases__", "__mro__",
	"__getattribute__", "__dict__", "__loader__", "__spec__",
	"f_globals", "f_builtins", "f_locals", "f_back", "gi_frame", "cr_frame", "tb_frame",
}

// ReflectionRule rejects dunder attributes used to escape the builtin scope.
func ReflectionRule() Rule {
	return Rule{
		Name: "reflection",
		Check: func(source string) *Violation {
			for _, name := range reflectionNames {
				if strings.Contains(source, name) {
					return &Violation{Match: name, Reason: reasonIntrospect}
				}
			}
			return nil
		},
	}
}
