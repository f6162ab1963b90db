package sandbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ScriptName is the default file name a program is stored under.
const ScriptName = "solution.py"

// ExecOpts describes a code execution request.
type ExecOpts struct {
	Code     string        // Program source
	Filename string        // File name inside the run directory; ScriptName when empty
	Stdin    string
	Timeout  time.Duration // Overrides the policy timeout when > 0
}

// State is how a run ended.
type State string

const (
	StateCompleted      State = "completed"
	StateTimedOut       State = "timed_out"
	StateMemoryExceeded State = "memory_exceeded"
)

// ExecResult is the output of a sandboxed execution.
type ExecResult struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	State           State
	Elapsed         time.Duration
	Truncated       bool   // stdout or stderr hit the output cap
	PeakMemoryBytes uint64 // resident set size high-water mark, when sampled
	Timeout         time.Duration
	MemoryLimit     uint64
	OutputLimit     int
}

// Success reports whether the process ran to completion with exit status 0.
func (r *ExecResult) Success() bool {
	return r.State == StateCompleted && r.ExitCode == 0
}

// Sandbox runs code in an isolated environment.
type Sandbox interface {
	Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error)
}

// Backend names accepted by New.
const (
	BackendProcess = "process"
	BackendDocker  = "docker"
)

// New returns the sandbox for backend.
func New(backend string, policy Policy, log *zap.Logger) (Sandbox, error) {
	switch backend {
	case "", BackendProcess:
		return NewProcessSandbox(policy, log), nil
	case BackendDocker:
		return NewDockerSandbox(policy, log), nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", backend)
	}
}

// ErrorType classifies environment failures. These are never the
// submission's fault.
type ErrorType string

const (
	ErrResolve ErrorType = "INTERPRETER_RESOLVE_ERROR"
	ErrSetup   ErrorType = "RUN_SETUP_ERROR"
	ErrSpawn   ErrorType = "PROCESS_START_ERROR"
	ErrWait    ErrorType = "PROCESS_WAIT_ERROR"
)

// Error is an environment failure from the sandbox itself.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (type: %s)", e.Message, e.Cause.Error(), e.Type)
	}
	return fmt.Sprintf("%s (type: %s)", e.Message, e.Type)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
