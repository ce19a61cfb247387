package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// maxOutputTail bounds how much tool output is kept for error messages.
const maxOutputTail = 2048

// ExitStatus is the result of a finished subprocess.
type ExitStatus struct {
	Code   int
	Output []byte // tail of combined stdout and stderr
}

// Success returns true for a zero exit code.
func (s ExitStatus) Success() bool {
	return s.Code == 0
}

// Subprocess runs an external tool to completion in dir.
// A non-zero exit is reported in ExitStatus, not as an error; the error is
// reserved for failures to start or wait for the process.
type Subprocess interface {
	Run(ctx context.Context, cmd string, args []string, dir string) (ExitStatus, error)
}

// ExecSubprocess runs tools with os/exec. The process is always waited for
// before Run returns.
type ExecSubprocess struct{}

// Run executes cmd with args in dir.
func (ExecSubprocess) Run(ctx context.Context, cmd string, args []string, dir string) (ExitStatus, error) {
	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = dir
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	err := c.Run()
	status := ExitStatus{Output: tail(out.Bytes(), maxOutputTail)}
	if err == nil {
		return status, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status.Code = exitErr.ExitCode()
		if status.Code == 0 {
			status.Code = -1
		}
		return status, nil
	}
	return status, fmt.Errorf("run %s: %w", cmd, err)
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return append([]byte(nil), b...)
	}
	return append([]byte(nil), b[len(b)-n:]...)
}

// IsCommandAvailable checks if cmd is installed and accessible.
func IsCommandAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
