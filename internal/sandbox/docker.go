package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DockerSandbox runs programs in throwaway Docker containers.
type DockerSandbox struct {
	Policy Policy
	log    *zap.Logger
}

// NewDockerSandbox creates a sandbox with the given policy.
func NewDockerSandbox(policy Policy, log *zap.Logger) *DockerSandbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &DockerSandbox{Policy: policy, log: log.Named("docker")}
}

// exitOOMKilled is the status docker reports when the kernel OOM killer
// ends the container's process.
const exitOOMKilled = 137

func (d *DockerSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	image := d.Policy.DockerImage
	if !d.Policy.IsImageAllowed(image) {
		return nil, &Error{Type: ErrSetup, Message: fmt.Sprintf("image %q not in allowlist", image)}
	}

	dir, script, err := prepareRunDir(opts)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	// The container user is not the file owner.
	if err := os.Chmod(dir, 0o755); err != nil {
		return nil, &Error{Type: ErrSetup, Message: "opening run directory", Cause: err}
	}
	if err := os.Chmod(filepath.Join(dir, script), 0o644); err != nil {
		return nil, &Error{Type: ErrSetup, Message: "opening program file", Cause: err}
	}

	name := "oracle-" + uuid.NewString()
	args := d.runArgs(name, dir, script)

	cmd := exec.Command("docker", args...)
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	res, err := run(ctx, runSpec{
		cmd:       cmd,
		timeout:   d.Policy.timeoutFor(opts),
		maxOutput: d.Policy.MaxOutputBytes,
		afterKill: func() { d.killContainer(name) },
		log:       d.log,
	})
	if err != nil {
		return nil, err
	}
	markOOM(res, d.Policy.DockerMemory)
	return res, nil
}

// markOOM reclassifies a run the container runtime killed. Timeouts are
// already marked, so a SIGKILL status on a completed run means --memory.
func markOOM(res *ExecResult, memory string) {
	if res.State != StateCompleted || res.ExitCode != exitOOMKilled {
		return
	}
	res.State = StateMemoryExceeded
	res.MemoryLimit = parseDockerMemory(memory)
}

// parseDockerMemory converts a docker --memory value such as "256m" to bytes.
// It returns 0 for values it cannot read.
func parseDockerMemory(s string) uint64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	shift := 0
	switch s[len(s)-1] {
	case 'b':
		s = s[:len(s)-1]
	case 'k':
		shift, s = 10, s[:len(s)-1]
	case 'm':
		shift, s = 20, s[:len(s)-1]
	case 'g':
		shift, s = 30, s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n << shift
}

func (d *DockerSandbox) runArgs(name, dir, script string) []string {
	args := []string{
		"run", "--rm", "-i",
		"--name", name,
		"--network=none",
		"--read-only",
		"--pids-limit", "64",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"-v", dir + ":/workspace:ro",
		"-w", "/workspace",
		"-e", "LANG=C.UTF-8",
	}
	if d.Policy.DockerMemory != "" {
		args = append(args, "--memory", d.Policy.DockerMemory)
	}
	args = append(args, d.Policy.DockerImage, "python3", "-I", "-S", "-B", script)
	return args
}

// killContainer stops a container whose CLI process was killed; the daemon
// keeps it running otherwise.
func (d *DockerSandbox) killContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, "docker", "kill", name).CombinedOutput(); err != nil {
		d.log.Warn("docker kill failed", zap.String("container", name), zap.Error(err), zap.ByteString("output", out))
	}
}
