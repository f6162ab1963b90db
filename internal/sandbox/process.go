package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ProcessSandbox runs programs with a local python3 in a throwaway directory.
type ProcessSandbox struct {
	Policy   Policy
	resolver *Resolver
	log      *zap.Logger
}

// NewProcessSandbox creates a sandbox with the given policy.
func NewProcessSandbox(policy Policy, log *zap.Logger) *ProcessSandbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProcessSandbox{
		Policy:   policy,
		resolver: NewResolver(policy.Interpreter),
		log:      log.Named("sandbox"),
	}
}

// Interpreter returns the resolved interpreter.
func (p *ProcessSandbox) Interpreter() (Interpreter, error) {
	return p.resolver.Resolve()
}

func (p *ProcessSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	interp, err := p.resolver.Resolve()
	if err != nil {
		return nil, err
	}

	dir, script, err := prepareRunDir(opts)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	argv := interp.Command("-I", "-S", "-B", script)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = []string{
		"PATH=/usr/bin:/bin",
		"HOME=" + dir,
		"LANG=C.UTF-8",
		"LC_ALL=C.UTF-8",
	}
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	res, err := run(ctx, runSpec{
		cmd:       cmd,
		timeout:   p.Policy.timeoutFor(opts),
		maxOutput: p.Policy.MaxOutputBytes,
		maxMemory: p.Policy.MaxMemoryBytes,
		sampleRSS: true,
		log:       p.log,
	})
	if err != nil {
		return nil, err
	}
	res.Stderr = strings.ReplaceAll(res.Stderr, dir+string(filepath.Separator), "")
	return res, nil
}

// prepareRunDir creates a private directory holding the program file.
func prepareRunDir(opts ExecOpts) (dir, script string, err error) {
	script = opts.Filename
	if script == "" {
		script = ScriptName
	}
	if filepath.Base(script) != script {
		return "", "", &Error{Type: ErrSetup, Message: fmt.Sprintf("invalid script name %q", script)}
	}
	dir, err = os.MkdirTemp("", "oracle-run-*")
	if err != nil {
		return "", "", &Error{Type: ErrSetup, Message: "creating run directory", Cause: err}
	}
	if err := os.WriteFile(filepath.Join(dir, script), []byte(opts.Code), 0o600); err != nil {
		os.RemoveAll(dir)
		return "", "", &Error{Type: ErrSetup, Message: "writing program file", Cause: err}
	}
	return dir, script, nil
}
