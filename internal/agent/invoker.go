// Package agent runs the external agent CLI and interprets its output.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Result is the raw outcome of one agent process.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Failed reports whether the process exited non-zero.
func (r Result) Failed() bool { return r.ExitCode != 0 }

// Invoker spawns the agent process with args and env and waits for it to exit.
// A non-zero exit is reported through Result.ExitCode; the error is reserved
// for failures to start the process at all.
type Invoker interface {
	Spawn(ctx context.Context, args, env []string) (Result, error)
}

// ExecInvoker runs a local binary.
type ExecInvoker struct {
	// Binary is the executable name or path. Defaults to "claude".
	Binary string

	// Dir is the working directory of the process.
	Dir string
}

// DefaultBinary is the agent CLI used when none is configured.
const DefaultBinary = "claude"

// Spawn implements Invoker.
func (e *ExecInvoker) Spawn(ctx context.Context, args, env []string) (Result, error) {
	binary := e.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = e.Dir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("agent: starting %s: %w", binary, err)
}
