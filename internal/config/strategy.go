package config

// StrategyConfig defines per-stage model selections and fallbacks.
type StrategyConfig struct {
	DefaultModel       string   `mapstructure:"default_model"`
	ClarifierModel     string   `mapstructure:"clarifier_model"`
	MathematicianModel string   `mapstructure:"mathematician_model"`
	PlannerModel       string   `mapstructure:"planner_model"`
	ReporterModel      string   `mapstructure:"reporter_model"`
	CoderModel         string   `mapstructure:"coder_model"`
	ClassifierModel    string   `mapstructure:"classifier_model"`
	Fallbacks          []string `mapstructure:"fallbacks"` // ordered fallback model ids
}

func (s StrategyConfig) roleModels() []string {
	return []string{
		s.DefaultModel, s.ClarifierModel, s.MathematicianModel,
		s.PlannerModel, s.ReporterModel, s.CoderModel, s.ClassifierModel,
	}
}
