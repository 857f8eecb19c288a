package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/tools"
)

// ToolLoop drives a model through thought, tool and human-query turns until
// it submits a deliverable or runs out of iterations.
type ToolLoop struct {
	Base          *Base
	Tools         *tools.Registry
	Template      string
	MaxIterations int
	// Params builds the template parameters around the current scratchpad.
	Params func(scratchpad string) map[string]any
}

// LoopResult is the outcome of a loop run. Exhausted means the ceiling was
// reached without a deliverable; Payload is then empty.
type LoopResult struct {
	Payload    string
	Iterations int
	Exhausted  bool
	Scratchpad *Scratchpad
}

// Run executes the loop. Only model-call and transport failures are
// returned as errors; malformed replies are fed back to the model.
func (l *ToolLoop) Run(ctx context.Context) (LoopResult, error) {
	scratch := &Scratchpad{}
	logger := l.Base.Logger()

	for i := 1; i <= l.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return LoopResult{Iterations: i - 1, Scratchpad: scratch}, err
		}

		reply, err := l.Base.CallLLM(ctx, l.Template, l.Params(scratch.String()))
		if err != nil {
			return LoopResult{Iterations: i, Scratchpad: scratch}, err
		}

		done, payload, err := l.turn(reply, scratch)
		if err != nil {
			return LoopResult{Iterations: i, Scratchpad: scratch}, err
		}
		if done {
			logger.Info("deliverable submitted", zap.Int("iterations", i))
			return LoopResult{Payload: payload, Iterations: i, Scratchpad: scratch}, nil
		}
	}

	l.Base.metrics().RecordCeilingHit(string(l.Base.Stage()))
	logger.Warn("iteration ceiling reached without a deliverable", zap.Int("iterations", l.MaxIterations))
	return LoopResult{Iterations: l.MaxIterations, Exhausted: true, Scratchpad: scratch}, nil
}

// turn handles one model reply. It reports whether the reply carried the
// deliverable.
func (l *ToolLoop) turn(reply string, scratch *Scratchpad) (bool, string, error) {
	text := strings.TrimSpace(tools.StripFences(reply))

	inv, err := tools.ParseInvocation(reply)
	if errors.Is(err, tools.ErrNoInvocation) {
		scratch.Append(text)
		return false, "", nil
	}

	var tool tools.Tool
	if err == nil {
		tool, err = tools.Resolve(l.Tools, inv)
	}
	var malformed *tools.MalformedError
	if errors.As(err, &malformed) {
		l.Base.metrics().RecordMalformedTurn(string(l.Base.Stage()))
		l.Base.Logger().Debug("malformed tool invocation", zap.String("reply", text), zap.Error(malformed.Err))
		scratch.Append(correction(text, malformed.Err))
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}

	payload, _ := inv.Field(tool.Payload)
	switch tool.Kind {
	case tools.KindReport:
		return true, CleanDeliverable(payload), nil
	case tools.KindHumanQuery:
		answer, err := l.Base.QueryHuman(payload)
		if err != nil {
			return false, "", err
		}
		rendered, err := inv.WithOutput(answer).Render()
		if err != nil {
			return false, "", err
		}
		scratch.Append(rendered)
		return false, "", nil
	default:
		return false, "", fmt.Errorf("tool %q has no handler", tool.Schema.Name)
	}
}

func correction(text string, err error) string {
	return fmt.Sprintf(
		"# YAML ERROR: the command above could not be used. Write it again as valid YAML,\n"+
			"# with any multi-line value as a block scalar starting with \"|\".\n"+
			"# Input:\n%s\n# Error: %v",
		commentOut(text), err,
	)
}

func commentOut(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "# " + l
	}
	return strings.Join(lines, "\n")
}
