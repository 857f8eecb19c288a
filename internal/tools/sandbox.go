package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PolybrainAI/polybrain-core/internal/config"
)

// Sandbox owns the scratch directory generated scripts are written to and
// the terminal that runs them. Each session gets its own directory and each
// attempt its own file, so concurrent sessions never share a script.
type Sandbox struct {
	guard       *PathGuard
	Terminal    *Terminal
	Interpreter string
	KeepScripts bool
}

var defaultDenied = []string{
	"sh", "bash", "zsh", "curl", "wget", "nc", "netcat", "ssh", "scp", "rm",
}

// NewSandbox builds the script sandbox from executor config.
func NewSandbox(cfg config.ExecutorConfig) (*Sandbox, error) {
	if err := os.MkdirAll(cfg.ScratchDir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	guard, err := NewPathGuard(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}

	allowed := cfg.AllowedInterpreters
	if len(allowed) == 0 {
		allowed = []string{cfg.Interpreter}
	}

	return &Sandbox{
		guard: guard,
		Terminal: &Terminal{
			WorkingDir:     guard.BaseDir,
			Allowed:        dedupeStrings(allowed),
			Denied:         defaultDenied,
			Timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
			AllowExecution: true,
		},
		Interpreter: cfg.Interpreter,
		KeepScripts: cfg.KeepScripts,
	}, nil
}

// Dir returns the scratch root.
func (s *Sandbox) Dir() string {
	return s.guard.BaseDir
}

// ScriptPath returns where attempt n of a session is written.
func (s *Sandbox) ScriptPath(sessionID string, attempt int) (string, error) {
	return s.guard.Join(sessionID, fmt.Sprintf("attempt-%03d.py", attempt))
}

// WriteScript writes the source of one attempt and returns its path.
func (s *Sandbox) WriteScript(sessionID string, attempt int, source string) (string, error) {
	path, err := s.ScriptPath(sessionID, attempt)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	return path, nil
}

// RunScript runs a written script with the interpreter in its session
// directory. env is passed to the process only.
func (s *Sandbox) RunScript(ctx context.Context, path string, env []string) (ExecResult, error) {
	return s.Terminal.Run(ctx, Command{
		Name: s.Interpreter,
		Args: []string{filepath.Base(path)},
		Env:  env,
		Dir:  filepath.Dir(path),
	})
}

// Cleanup removes a session's scripts unless KeepScripts is set.
func (s *Sandbox) Cleanup(sessionID string) error {
	if s.KeepScripts {
		return nil
	}
	dir, err := s.guard.Join(sessionID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
