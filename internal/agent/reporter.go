package agent

import (
	"context"
	"strings"

	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/prompts"
)

// Reporter tells the user what is about to be built.
type Reporter struct {
	Base
}

// NewReporter builds the summary stage.
func NewReporter(env Env) *Reporter {
	return &Reporter{Base: NewBase(env, StageReporter)}
}

// Invoke summarizes the outline and sends the summary to the user.
func (r *Reporter) Invoke(ctx context.Context, outline string) (string, error) {
	summary, err := r.CallLLM(ctx, prompts.Reporter, map[string]any{"Report": outline})
	if err != nil {
		return "", err
	}
	// Users know the CAD product, not the scripting library.
	summary = strings.ReplaceAll(TrimAssistantPrefix(summary), "OnPy", "OnShape")
	if summary == "" {
		return "", nil
	}
	if err := r.SendMessage(bridge.InfoMessage(summary)); err != nil {
		return "", err
	}
	return summary, nil
}
