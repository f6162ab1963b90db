package sandbox

import (
	"slices"
	"time"
)

// Policy defines resource limits for sandbox execution.
type Policy struct {
	Interpreter    string        // Interpreter override, e.g. "/usr/bin/env python3"; empty means auto-detect
	Timeout        time.Duration // Wall-clock limit per run
	MaxOutputBytes int           // Cap per stream; 0 disables the cap
	MaxMemoryBytes uint64        // RSS limit for the process backend; 0 disables sampling limit
	DockerImage    string        // Image for the docker backend
	DockerMemory   string        // Docker memory limit (e.g. "256m")
	Images         []string      // Allowed Docker images
}

// DefaultPolicy returns safe defaults for code execution.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:        5 * time.Second,
		MaxOutputBytes: 64 << 10,
		MaxMemoryBytes: 256 << 20,
		DockerImage:    "python:3.12-slim",
		DockerMemory:   "256m",
		Images: []string{
			"python:3.12-slim",
			"python:3.13-slim",
			"python:3.12-alpine",
		},
	}
}

// IsImageAllowed checks if an image is on the allowlist.
func (p Policy) IsImageAllowed(image string) bool {
	return slices.Contains(p.Images, image)
}

func (p Policy) timeoutFor(opts ExecOpts) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultPolicy().Timeout
}
