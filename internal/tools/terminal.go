package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPassEnv lists the host variables a process sees when
// Terminal.PassEnv is nil.
var DefaultPassEnv = []string{"PATH", "HOME", "TMPDIR", "LANG", "SYSTEMROOT"}

// Terminal runs interpreter processes with allow/deny checks.
type Terminal struct {
	WorkingDir     string
	Allowed        []string
	Denied         []string
	Timeout        time.Duration
	AllowExecution bool
	// PassEnv names the host variables copied into the process environment.
	// Nothing else from the daemon's environment reaches the process.
	PassEnv []string
}

// Command is one process invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the passed-through host variables.
	Env []string
	Dir string
}

// ExecResult carries output and status code.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// OK reports whether the process exited cleanly.
func (r ExecResult) OK() bool {
	return r.ExitCode == 0
}

// Run executes cmd if allowed by configuration. A process that starts and
// exits non-zero is not an error: its status is in the result. Errors mean
// the process could not be run or was killed by the timeout.
func (t *Terminal) Run(ctx context.Context, cmd Command) (ExecResult, error) {
	if !t.AllowExecution {
		return ExecResult{}, errors.New("execution disabled by configuration")
	}
	if cmd.Name == "" {
		return ExecResult{}, fmt.Errorf("command is required")
	}
	if err := t.validateCommand(cmd.Name); err != nil {
		return ExecResult{}, err
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	switch {
	case cmd.Dir != "":
		proc.Dir = cmd.Dir
	case t.WorkingDir != "":
		proc.Dir = t.WorkingDir
	}
	proc.Env = append(t.hostEnv(), cmd.Env...)

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	started := time.Now()
	err := proc.Run()

	res := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		res.ExitCode = -1
		return res, fmt.Errorf("%s timed out after %s: %w", cmd.Name, timeout, ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		res.ExitCode = -1
		return res, fmt.Errorf("run %s: %w", cmd.Name, err)
	}
}

func (t *Terminal) hostEnv() []string {
	names := t.PassEnv
	if names == nil {
		names = DefaultPassEnv
	}
	env := make([]string, 0, len(names))
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

func (t *Terminal) validateCommand(cmd string) error {
	lower := strings.ToLower(filepath.Base(cmd))
	for _, deny := range t.Denied {
		if lower == strings.ToLower(deny) {
			return fmt.Errorf("command %q is denied", cmd)
		}
	}
	if len(t.Allowed) > 0 {
		for _, allow := range t.Allowed {
			if lower == strings.ToLower(allow) {
				return nil
			}
		}
		return fmt.Errorf("command %q is not in allowlist", cmd)
	}
	return nil
}
