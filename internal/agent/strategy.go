package agent

import (
	"strings"

	"github.com/PolybrainAI/polybrain-core/internal/config"
	"github.com/PolybrainAI/polybrain-core/internal/llm"
)

// Stage names a pipeline stage. It doubles as the metrics and log label.
type Stage string

const (
	StageClarifier     Stage = "clarifier"
	StageMathematician Stage = "mathematician"
	StagePlanner       Stage = "planner"
	StageReporter      Stage = "reporter"
	StageCoder         Stage = "coder"
	StageClassifier    Stage = "classifier"
)

// Stages lists the model-calling stages in pipeline order.
var Stages = []Stage{StageClarifier, StageMathematician, StagePlanner, StageReporter, StageCoder, StageClassifier}

// StrategyEngine chooses models for the stages.
type StrategyEngine struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
}

// NewStrategyEngine builds a strategy selector.
func NewStrategyEngine(reg *llm.Registry, cfg config.StrategyConfig) *StrategyEngine {
	return &StrategyEngine{registry: reg, cfg: cfg}
}

// Route returns the model for a stage and the fallbacks to try after it.
// A configured model that is not registered is skipped in favour of the
// next fallback.
func (s *StrategyEngine) Route(stage Stage) (string, []string) {
	if s == nil {
		return "", nil
	}
	candidates := []string{firstNonEmpty(roleModel(stage, s.cfg), s.cfg.DefaultModel)}
	candidates = append(candidates, s.cfg.Fallbacks...)

	var usable []string
	seen := map[string]bool{}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if seen[c] {
			continue
		}
		seen[c] = true
		if s.registry != nil {
			if _, _, err := s.registry.Resolve(c); err != nil {
				continue
			}
		}
		usable = append(usable, c)
	}
	if len(usable) == 0 {
		return "", nil
	}
	return usable[0], usable[1:]
}

// ResolveModel returns the route a stage will use first.
func (s *StrategyEngine) ResolveModel(stage Stage) (llm.Provider, llm.ModelRoute, error) {
	model, _ := s.Route(stage)
	return s.registry.Resolve(model)
}

func roleModel(stage Stage, cfg config.StrategyConfig) string {
	switch stage {
	case StageClarifier:
		return cfg.ClarifierModel
	case StageMathematician:
		return cfg.MathematicianModel
	case StagePlanner:
		return cfg.PlannerModel
	case StageReporter:
		return cfg.ReporterModel
	case StageCoder:
		return cfg.CoderModel
	case StageClassifier:
		return cfg.ClassifierModel
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
