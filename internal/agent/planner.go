package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/prompts"
	"github.com/PolybrainAI/polybrain-core/internal/tools"
)

// Plan is the planner's build outline.
type Plan struct {
	Outline    string
	Iterations int
	// Degraded is set when the planner never submitted a report and the
	// outline is the request itself.
	Degraded bool
}

// Planner writes a step-by-step build outline, asking the user for any
// missing measurements along the way.
type Planner struct {
	Base
	Tools         *tools.Registry
	MaxIterations int
}

// NewPlanner builds the planning stage with the ask-user and report tools.
func NewPlanner(env Env, maxIterations int) *Planner {
	return &Planner{
		Base:          NewBase(env, StagePlanner),
		Tools:         tools.PlannerTools(),
		MaxIterations: maxIterations,
	}
}

// Invoke plans the model described by request.
func (p *Planner) Invoke(ctx context.Context, request, mathNotes string) (Plan, error) {
	toolText, err := p.Tools.Describe()
	if err != nil {
		return Plan{}, err
	}

	loop := &ToolLoop{
		Base:          &p.Base,
		Tools:         p.Tools,
		Template:      prompts.Planner,
		MaxIterations: p.MaxIterations,
		Params: func(scratchpad string) map[string]any {
			return map[string]any{
				"Request":    request,
				"MathNotes":  mathNotes,
				"Tools":      toolText,
				"Scratchpad": scratchpad,
			}
		},
	}

	res, err := loop.Run(ctx)
	if err != nil {
		return Plan{}, err
	}
	if res.Exhausted || res.Payload == "" {
		p.Logger().Warn("planner produced no report; using the request as the outline", zap.Int("iterations", res.Iterations))
		return Plan{Outline: request, Iterations: res.Iterations, Degraded: true}, nil
	}
	return Plan{Outline: res.Payload, Iterations: res.Iterations}, nil
}
