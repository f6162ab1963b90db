package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/shlex"
)

// DefaultCandidates are well-known python3 locations, checked in order.
var DefaultCandidates = []string{
	"/opt/homebrew/bin/python3",
	"/usr/local/bin/python3",
	"/usr/bin/python3",
	"/Library/Frameworks/Python.framework/Versions/Current/bin/python3",
}

// fallbackPath is used when nothing else resolves; starting it may still fail.
const fallbackPath = "/usr/bin/python3"

// Interpreter is a resolved executable plus fixed leading arguments.
type Interpreter struct {
	Path string
	Args []string
}

// Command returns the full argv for running with extra args.
func (i Interpreter) Command(args ...string) []string {
	out := make([]string, 0, 1+len(i.Args)+len(args))
	out = append(out, i.Path)
	out = append(out, i.Args...)
	return append(out, args...)
}

// Resolver finds the interpreter once and caches the answer.
type Resolver struct {
	override   string
	candidates []string
	lookPath   func(string) (string, error)

	once   sync.Once
	interp Interpreter
	err    error
}

// NewResolver creates a resolver. A non-empty override is split with shell
// quoting rules and must name an executable.
func NewResolver(override string) *Resolver {
	return &Resolver{
		override:   strings.TrimSpace(override),
		candidates: DefaultCandidates,
		lookPath:   exec.LookPath,
	}
}

// Resolve returns the interpreter, resolving it on first call.
func (r *Resolver) Resolve() (Interpreter, error) {
	r.once.Do(r.resolve)
	return r.interp, r.err
}

func (r *Resolver) resolve() {
	if r.override != "" {
		r.interp, r.err = r.resolveOverride()
		return
	}
	for _, c := range r.candidates {
		if isExecutable(c) {
			r.interp = Interpreter{Path: c}
			return
		}
	}
	if p, err := r.lookPath("python3"); err == nil {
		r.interp = Interpreter{Path: p}
		return
	}
	r.interp = Interpreter{Path: fallbackPath}
}

func (r *Resolver) resolveOverride() (Interpreter, error) {
	fields, err := shlex.Split(r.override)
	if err != nil {
		return Interpreter{}, &Error{Type: ErrResolve, Message: fmt.Sprintf("parsing interpreter %q", r.override), Cause: err}
	}
	if len(fields) == 0 {
		return Interpreter{}, &Error{Type: ErrResolve, Message: "interpreter override is empty"}
	}
	path := fields[0]
	if filepath.IsAbs(path) {
		if !isExecutable(path) {
			return Interpreter{}, &Error{Type: ErrResolve, Message: fmt.Sprintf("interpreter %q", path), Cause: errors.New("not an executable file")}
		}
	} else {
		p, err := r.lookPath(path)
		if err != nil {
			return Interpreter{}, &Error{Type: ErrResolve, Message: fmt.Sprintf("interpreter %q", path), Cause: err}
		}
		path = p
	}
	return Interpreter{Path: path, Args: fields[1:]}, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
