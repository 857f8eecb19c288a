package codegen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/observability"
	"github.com/PolybrainAI/polybrain-core/internal/tools"
)

// ErrRepairBudgetExhausted is returned when a script still fails after the
// configured number of repair prompts.
var ErrRepairBudgetExhausted = errors.New("codegen: repair budget exhausted")

// RepairExhaustedError carries the last failed attempt for diagnosis.
type RepairExhaustedError struct {
	Last    Attempt
	Repairs int
}

func (e *RepairExhaustedError) Error() string {
	return fmt.Sprintf("script still failing after %d repairs (attempt %d)", e.Repairs, e.Last.Index)
}

func (e *RepairExhaustedError) Is(target error) bool {
	return target == ErrRepairBudgetExhausted
}

// Attempt is one executed (or rejected) script.
type Attempt struct {
	Index    int
	Source   string
	Path     string
	Stdout   string
	Stderr   string
	ExitCode int
	OK       bool
	Duration time.Duration
}

// Output is what the attempt printed: stdout on success, stderr otherwise.
func (a Attempt) Output() string {
	if a.OK {
		return a.Stdout
	}
	return a.Stderr
}

// Workspace writes and runs scripts. *tools.Sandbox implements it.
type Workspace interface {
	WriteScript(sessionID string, attempt int, source string) (string, error)
	RunScript(ctx context.Context, path string, env []string) (tools.ExecResult, error)
}

// Recorder persists attempts.
type Recorder interface {
	RecordAttempt(ctx context.Context, sessionID string, a Attempt) error
}

// Fixer asks the model for corrected code given a failed attempt and
// returns its raw reply.
type Fixer func(ctx context.Context, failed Attempt) (string, error)

// Engine runs scripts and drives repair. It holds no per-session state and
// is shared by all sessions.
type Engine struct {
	Workspace  Workspace
	MaxRepairs int
	Recorder   Recorder
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// Target identifies where a session's scripts run.
type Target struct {
	SessionID  string
	DocumentID string
	Env        []string
}

// Run is the engine bound to one session. Attempt numbers increase across
// every execution of the session, repairs included.
type Run struct {
	engine *Engine
	target Target
	logger *zap.Logger

	mu   sync.Mutex
	next int
}

// Session binds the engine to a session.
func (e *Engine) Session(target Target) *Run {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Run{engine: e, target: target, logger: logger}
}

func (r *Run) nextIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	return r.next
}

// Execute prepends the preamble to code, writes it to a fresh scratch file
// and runs it. A script that fails is a normal, non-error outcome.
func (r *Run) Execute(ctx context.Context, code string) (Attempt, error) {
	attempt := Attempt{
		Index:  r.nextIndex(),
		Source: code,
	}

	path, err := r.engine.Workspace.WriteScript(r.target.SessionID, attempt.Index, Script(r.target.DocumentID, code))
	if err != nil {
		return attempt, fmt.Errorf("attempt %d: %w", attempt.Index, err)
	}
	attempt.Path = path

	r.logger.Debug("running script", zap.Int("attempt", attempt.Index), zap.String("path", path), zap.String("code", code))
	res, runErr := r.engine.Workspace.RunScript(ctx, path, r.target.Env)
	attempt.Stdout = res.Stdout
	attempt.Stderr = res.Stderr
	attempt.ExitCode = res.ExitCode
	attempt.Duration = res.Duration

	if runErr != nil {
		// A script that hit its own timeout failed; anything else means it
		// never ran.
		if ctx.Err() != nil || !errors.Is(runErr, context.DeadlineExceeded) {
			return attempt, fmt.Errorf("attempt %d: %w", attempt.Index, runErr)
		}
		if attempt.Stderr != "" {
			attempt.Stderr += "\n"
		}
		attempt.Stderr += "Process timed out and was killed."
	}
	attempt.OK = runErr == nil && res.ExitCode == 0

	r.engine.Metrics.RecordExecution(attempt.OK)
	if attempt.OK {
		r.logger.Debug("script succeeded", zap.Int("attempt", attempt.Index), zap.String("stdout", attempt.Stdout))
	} else {
		r.logger.Debug("script failed", zap.Int("attempt", attempt.Index), zap.Int("exit_code", attempt.ExitCode), zap.String("stderr", attempt.Stderr))
	}
	r.record(ctx, attempt)
	return attempt, nil
}

// ExecuteWithRepair runs code and, while it fails, asks fix for corrected
// code, up to MaxRepairs times. It returns the first successful attempt, or
// a *RepairExhaustedError holding the last failure.
func (r *Run) ExecuteWithRepair(ctx context.Context, code string, fix Fixer) (Attempt, error) {
	attempt, err := r.Execute(ctx, code)
	if err != nil {
		return attempt, err
	}

	for repairs := 0; !attempt.OK; repairs++ {
		if repairs >= r.engine.MaxRepairs {
			r.logger.Warn("repair budget exhausted",
				zap.Int("repairs", repairs),
				zap.Int("attempt", attempt.Index),
				zap.String("last_error", attempt.Stderr),
			)
			return attempt, &RepairExhaustedError{Last: attempt, Repairs: repairs}
		}

		reply, err := fix(ctx, attempt)
		if err != nil {
			return attempt, fmt.Errorf("repair after attempt %d: %w", attempt.Index, err)
		}

		fixed, err := Extract(reply)
		if err != nil {
			attempt = Attempt{
				Index:    r.nextIndex(),
				Source:   reply,
				Stderr:   "The reply did not contain a fenced code block. Reply with the complete corrected program in a single code block.",
				ExitCode: -1,
			}
			r.engine.Metrics.RecordRepair(false)
			r.record(ctx, attempt)
			continue
		}

		attempt, err = r.Execute(ctx, fixed)
		if err != nil {
			return attempt, err
		}
		r.engine.Metrics.RecordRepair(attempt.OK)
	}
	return attempt, nil
}

func (r *Run) record(ctx context.Context, a Attempt) {
	if r.engine.Recorder == nil {
		return
	}
	if err := r.engine.Recorder.RecordAttempt(ctx, r.target.SessionID, a); err != nil {
		r.logger.Warn("failed to record attempt", zap.Int("attempt", a.Index), zap.Error(err))
	}
}
