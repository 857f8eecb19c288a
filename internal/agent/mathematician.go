package agent

import (
	"context"
	"strings"

	"github.com/PolybrainAI/polybrain-core/internal/prompts"
)

// NoMathNotes is the mathematician's output when it has nothing to add.
const NoMathNotes = "No math notes"

// Mathematician derives quantities the planner will need.
type Mathematician struct {
	Base
	Enabled bool
}

// NewMathematician builds the math stage. When disabled it makes no calls.
func NewMathematician(env Env, enabled bool) *Mathematician {
	return &Mathematician{Base: NewBase(env, StageMathematician), Enabled: enabled}
}

// Invoke returns notes for the request.
func (m *Mathematician) Invoke(ctx context.Context, request string) (string, error) {
	if !m.Enabled {
		return NoMathNotes, nil
	}
	notes, err := m.CallLLM(ctx, prompts.Mathematician, map[string]any{"Request": request})
	if err != nil {
		return "", err
	}
	if notes = strings.TrimSpace(notes); notes == "" {
		return NoMathNotes, nil
	}
	return notes, nil
}
