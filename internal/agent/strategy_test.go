package agent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PolybrainAI/polybrain-core/internal/config"
	"github.com/PolybrainAI/polybrain-core/internal/llm"
	llmmock "github.com/PolybrainAI/polybrain-core/internal/llm/mock"
)

func strategyRegistry() *llm.Registry {
	reg := llm.NewRegistry()
	reg.RegisterProvider("p", &llmmock.Provider{})
	reg.RegisterModel("plan-model", llm.ModelRoute{Provider: "p", Model: "m1"}, true)
	reg.RegisterModel("code-model", llm.ModelRoute{Provider: "p", Model: "m2"}, false)
	reg.RegisterModel("cheap-model", llm.ModelRoute{Provider: "p", Model: "m3"}, false)
	return reg
}

func TestStrategyResolvesStages(t *testing.T) {
	engine := NewStrategyEngine(strategyRegistry(), config.StrategyConfig{
		DefaultModel:    "cheap-model",
		PlannerModel:    "plan-model",
		CoderModel:      "code-model",
		ClassifierModel: "cheap-model",
		Fallbacks:       []string{"cheap-model", "plan-model"},
	})

	model, fallbacks := engine.Route(StagePlanner)
	require.Equal(t, "plan-model", model)
	require.Equal(t, []string{"cheap-model"}, fallbacks)

	model, fallbacks = engine.Route(StageCoder)
	require.Equal(t, "code-model", model)
	require.Equal(t, []string{"cheap-model", "plan-model"}, fallbacks)

	model, _ = engine.Route(StageReporter)
	require.Equal(t, "cheap-model", model, "unset stage uses the default model")

	_, route, err := engine.ResolveModel(StageCoder)
	require.NoError(t, err)
	require.Equal(t, "m2", route.Model)
}

func TestStrategySkipsUnregisteredModels(t *testing.T) {
	engine := NewStrategyEngine(strategyRegistry(), config.StrategyConfig{
		CoderModel: "retired-model",
		Fallbacks:  []string{"gone", "cheap-model"},
	})

	model, fallbacks := engine.Route(StageCoder)
	require.Equal(t, "cheap-model", model)
	require.Empty(t, fallbacks)
}

func TestNilStrategyUsesRegistryDefault(t *testing.T) {
	var engine *StrategyEngine
	model, fallbacks := engine.Route(StagePlanner)
	require.Empty(t, model)
	require.Nil(t, fallbacks)
}
