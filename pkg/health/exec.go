package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecChecker runs a command and treats exit code 0 as healthy
type ExecChecker struct {
	// Command is the command to execute (e.g., ["7z", "--help"])
	Command []string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration
}

// NewExecChecker creates a new exec health checker
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// NewSevenZipChecker probes an external 7z binary
func NewSevenZipChecker(binary string) *ExecChecker {
	return NewExecChecker([]string{binary, "--help"})
}

// Check performs the exec health check
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return failed(start, "no command specified")
	}

	path, err := exec.LookPath(e.Command[0])
	if err != nil {
		return failed(start, fmt.Sprintf("%s not found in PATH", e.Command[0]))
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, path, e.Command[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), err)
		if stderr.Len() > 0 {
			message = fmt.Sprintf("%s, stderr: %s", message, firstLine(stderr.String()))
		}
		return failed(start, message)
	}

	message := path
	if line := firstNonEmptyLine(stdout.String()); line != "" {
		message = fmt.Sprintf("%s (%s)", path, line)
	}
	return passed(start, message)
}

// Type returns the health check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if len(line) > 100 {
		line = line[:100] + "..."
	}
	return strings.TrimSpace(line)
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return firstLine(line)
		}
	}
	return ""
}
