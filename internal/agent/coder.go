package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/codegen"
	"github.com/PolybrainAI/polybrain-core/internal/prompts"
)

// ConfirmationQuestion is asked after every successful script run.
const ConfirmationQuestion = "Does this model meet your specifications?"

var (
	codeStop       = []string{"```\n\n", "Cell Output"}
	classifierStop = []string{"\n"}
)

// CodeResult is the coder's outcome. Accepted is false when the user never
// approved a model within the iteration ceiling.
type CodeResult struct {
	Accepted   bool
	Attempt    codegen.Attempt
	Iterations int
}

// Coder writes the modeling script, runs it through the repair engine and
// asks the user to approve the result.
type Coder struct {
	Base
	Engine        *codegen.Engine
	Guide         string
	MaxIterations int
}

// NewCoder builds the coding stage.
func NewCoder(env Env, engine *codegen.Engine, guide string, maxIterations int) *Coder {
	return &Coder{
		Base:          NewBase(env, StageCoder),
		Engine:        engine,
		Guide:         guide,
		MaxIterations: maxIterations,
	}
}

// Invoke generates code for request following the planner's instructions.
// A *codegen.RepairExhaustedError (ErrBudgetExhausted) is returned when a
// script cannot be repaired.
func (c *Coder) Invoke(ctx context.Context, request, instructions string) (CodeResult, error) {
	if c.env.Session == nil {
		return CodeResult{}, errors.New("coder: no session")
	}
	run := c.Engine.Session(c.env.Session.Target())
	preamble := strings.TrimSpace(codegen.Preamble(c.env.Session.DocumentID))
	scratch := &Scratchpad{}

	var last codegen.Attempt
	for i := 1; i <= c.MaxIterations; i++ {
		reply, err := c.CallLLM(ctx, prompts.Coder, map[string]any{
			"Guide":        c.Guide,
			"Request":      request,
			"Instructions": instructions,
			"Preamble":     preamble,
			"Scratchpad":   scratch.String(),
		}, codeStop...)
		if err != nil {
			return CodeResult{Attempt: last, Iterations: i}, err
		}

		code, err := codegen.Extract(reply)
		if err != nil {
			c.metrics().RecordMalformedTurn(string(c.Stage()))
			scratch.Append(strings.TrimSpace(reply) + "\n\nThat reply had no code. Reply with ONE python code block.")
			continue
		}

		attempt, err := run.ExecuteWithRepair(ctx, code, c.fixer(request, preamble))
		last = attempt
		if err != nil {
			return CodeResult{Attempt: attempt, Iterations: i}, err
		}
		scratch.Append(fmt.Sprintf("```python\n%s\n```\nCell Output:\n```\n%s\n```", attempt.Source, strings.TrimSpace(attempt.Stdout)))

		answer, err := c.QueryHuman(ConfirmationQuestion)
		if err != nil {
			return CodeResult{Attempt: attempt, Iterations: i}, err
		}
		accepted, err := c.accepts(ctx, answer)
		if err != nil {
			return CodeResult{Attempt: attempt, Iterations: i}, err
		}
		if accepted {
			c.Logger().Info("model accepted", zap.Int("iterations", i), zap.Int("attempt", attempt.Index))
			return CodeResult{Accepted: true, Attempt: attempt, Iterations: i}, nil
		}
		scratch.Append(fmt.Sprintf(
			"The user was asked if they are satisfied with the model above. They responded: %q\n"+
				"Make adjustments to the code to address their feedback.",
			strings.TrimSpace(answer),
		))
	}

	c.metrics().RecordCeilingHit(string(c.Stage()))
	c.Logger().Warn("no accepted model within the iteration ceiling", zap.Int("iterations", c.MaxIterations))
	return CodeResult{Attempt: last, Iterations: c.MaxIterations}, nil
}

// fixer returns the repair prompt for one repair episode. Each episode
// keeps its own history of failed fixes.
func (c *Coder) fixer(request, preamble string) codegen.Fixer {
	history := &Scratchpad{}
	return func(ctx context.Context, failed codegen.Attempt) (string, error) {
		reply, err := c.CallLLM(ctx, prompts.CoderRepair, map[string]any{
			"Guide":      c.Guide,
			"Request":    request,
			"Code":       failed.Source,
			"Error":      strings.TrimSpace(failed.Stderr),
			"Preamble":   preamble,
			"Scratchpad": history.String(),
		}, codeStop...)
		history.Append(fmt.Sprintf("```python\n%s\n```\nCell Error:\n```\n%s\n```", failed.Source, strings.TrimSpace(failed.Stderr)))
		return reply, err
	}
}

// accepts asks the classifier whether answer approves the model.
func (c *Coder) accepts(ctx context.Context, answer string) (bool, error) {
	verdict, err := c.callAs(ctx, StageClassifier, prompts.Classifier, map[string]any{"Answer": answer}, classifierStop...)
	if err != nil {
		return false, err
	}
	c.Logger().Debug("classified user answer", zap.String("answer", answer), zap.String("verdict", verdict))
	return strings.Contains(strings.ToLower(verdict), "yes"), nil
}
