package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const (
	memoryPollInterval = 20 * time.Millisecond
	waitDelay          = time.Second
)

// runSpec is one prepared command plus its limits.
type runSpec struct {
	cmd       *exec.Cmd
	timeout   time.Duration
	maxOutput int
	maxMemory uint64
	sampleRSS bool
	afterKill func() // extra teardown, e.g. stopping a container
	log       *zap.Logger
}

// run starts the command and races its exit against the timer, the memory
// monitor and ctx. The process is always reaped before run returns.
func run(ctx context.Context, spec runSpec) (*ExecResult, error) {
	cmd := spec.cmd
	stdout := &cappedBuffer{limit: spec.maxOutput}
	stderr := &cappedBuffer{limit: spec.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &Error{Type: ErrSpawn, Message: "failed to start " + cmd.Path, Cause: err}
	}
	pid := cmd.Process.Pid
	spec.log.Debug("process started", zap.Int("pid", pid), zap.Duration("timeout", spec.timeout))

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	var peak atomic.Uint64
	memExceeded := make(chan struct{})
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	if spec.sampleRSS {
		go monitorMemory(monitorCtx, int32(pid), spec.maxMemory, &peak, memExceeded)
	}

	timer := time.NewTimer(spec.timeout)
	defer timer.Stop()

	kill := func() {
		killProcessGroup(cmd)
		if spec.afterKill != nil {
			spec.afterKill()
		}
	}

	state := StateCompleted
	var waitErr error
	select {
	case waitErr = <-waitCh:
		// Reap anything the program left behind in its group.
		killProcessGroup(cmd)
	case <-timer.C:
		state = StateTimedOut
		kill()
		waitErr = <-waitCh
	case <-memExceeded:
		state = StateMemoryExceeded
		kill()
		waitErr = <-waitCh
	case <-ctx.Done():
		kill()
		<-waitCh
		spec.log.Debug("process cancelled", zap.Int("pid", pid))
		return nil, ctx.Err()
	}
	stopMonitor()
	elapsed := time.Since(start)

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay):
			exitCode = cmd.ProcessState.ExitCode()
		case state == StateCompleted:
			return nil, &Error{Type: ErrWait, Message: "waiting for process", Cause: waitErr}
		default:
			exitCode = -1
		}
	}

	res := &ExecResult{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        exitCode,
		State:           state,
		Elapsed:         elapsed,
		Truncated:       stdout.truncated || stderr.truncated,
		PeakMemoryBytes: peak.Load(),
		Timeout:         spec.timeout,
		MemoryLimit:     spec.maxMemory,
		OutputLimit:     spec.maxOutput,
	}
	spec.log.Debug("process finished",
		zap.Int("pid", pid),
		zap.String("state", string(state)),
		zap.Int("exit_code", exitCode),
		zap.Duration("elapsed", elapsed),
		zap.Uint64("peak_rss", res.PeakMemoryBytes),
	)
	return res, nil
}

// monitorMemory samples the process RSS until ctx ends, recording the peak.
// It closes exceeded once when limit > 0 and the RSS crosses it.
func monitorMemory(ctx context.Context, pid int32, limit uint64, peak *atomic.Uint64, exceeded chan<- struct{}) {
	ticker := time.NewTicker(memoryPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			proc, err := process.NewProcessWithContext(ctx, pid)
			if err != nil {
				continue
			}
			mem, err := proc.MemoryInfoWithContext(ctx)
			if err != nil {
				continue
			}
			if mem.RSS > peak.Load() {
				peak.Store(mem.RSS)
			}
			if limit > 0 && mem.RSS > limit {
				close(exceeded)
				return
			}
		}
	}
}

// cappedBuffer keeps at most limit bytes and silently drops the rest so the
// child never blocks on a full pipe. limit <= 0 means no cap.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	room := b.limit - b.buf.Len()
	if room < len(p) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
