package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PolybrainAI/polybrain-core/internal/config"
	"github.com/PolybrainAI/polybrain-core/internal/llm"
	"github.com/PolybrainAI/polybrain-core/internal/llm/configbuilder"
	llmmock "github.com/PolybrainAI/polybrain-core/internal/llm/mock"
)

func TestRegistryResolve(t *testing.T) {
	reg := llm.NewRegistry()
	mockProvider := &llmmock.Provider{NameValue: "mock"}
	reg.RegisterProvider("mock", mockProvider)
	reg.RegisterModel("default", llm.ModelRoute{
		Provider:    "mock",
		Model:       "dummy",
		Temperature: 0.2,
	}, true)
	reg.RegisterModel("other", llm.ModelRoute{Provider: "absent", Model: "x"}, false)

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, mockProvider, p)
	require.Equal(t, "dummy", route.Model)
	require.Equal(t, "default", route.Name)

	_, _, err = reg.Resolve("nope")
	require.ErrorContains(t, err, `model "nope" not registered`)

	_, _, err = reg.Resolve("other")
	require.ErrorContains(t, err, `provider "absent" not registered`)

	require.Equal(t, []string{"default", "other"}, reg.Models())
}

func TestBuildRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {Type: "openai", BaseURL: "http://example.com", MaxTokens: 2048},
			"local":  {Type: "ollama"},
		},
		Models: map[string]config.ModelConfig{
			"main":  {Provider: "openai", Model: "gpt-4o", Default: true},
			"small": {Provider: "local", Model: "llama3", MaxTokens: 256},
		},
	}

	reg, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.NoError(t, err)

	p, route, err := reg.Resolve("main")
	require.NoError(t, err)
	require.Equal(t, "openai", p.Name())
	require.Equal(t, 2048, route.MaxTokens)

	_, route, err = reg.Resolve("small")
	require.NoError(t, err)
	require.Equal(t, 256, route.MaxTokens)
}

func TestBuildRegistryRejectsUnknownProviderType(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{"x": {Type: "carrier-pigeon"}},
	}
	_, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.ErrorContains(t, err, "unknown provider type")
}

type templates map[string]string

func (t templates) Render(name string, params any) (string, error) {
	text, ok := t[name]
	if !ok {
		return "", errors.New("unknown template " + name)
	}
	if s, ok := params.(string); ok {
		return text + s, nil
	}
	return text, nil
}

func newGateway(t *testing.T, primary, backup *llmmock.Provider) *llm.Gateway {
	t.Helper()
	reg := llm.NewRegistry()
	reg.RegisterProvider("primary", primary)
	reg.RegisterModel("main", llm.ModelRoute{Provider: "primary", Model: "big"}, true)
	if backup != nil {
		reg.RegisterProvider("backup", backup)
		reg.RegisterModel("spare", llm.ModelRoute{Provider: "backup", Model: "small"}, false)
	}
	return llm.NewGateway(reg, templates{"greet": "Hello, "}, nil, nil)
}

func TestGatewayRendersAndTruncates(t *testing.T) {
	provider := llmmock.Scripted("```python\nx = 1\n```\n\nCell Output: 1")
	gw := newGateway(t, provider, nil)

	out, err := gw.Complete(context.Background(), llm.Call{
		Stage:    "coder",
		Template: "greet",
		Params:   "world",
		Stop:     []string{"```\n\n", "Cell Output"},
		APIKey:   "k",
	})
	require.NoError(t, err)
	require.Equal(t, "```python\nx = 1\n", out)

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "big", reqs[0].Model)
	require.Equal(t, "k", reqs[0].APIKey)
	require.Equal(t, []string{"Hello, world"}, provider.Prompts())
	require.Equal(t, llm.RoleUser, reqs[0].Messages[0].Role)
}

func TestGatewayFallsBack(t *testing.T) {
	primary := &llmmock.Provider{ChatFn: func(context.Context, llm.ChatRequest) (llm.ChatResponse, error) {
		return llm.ChatResponse{}, errors.New("rate limited")
	}}
	backup := llmmock.Scripted("from backup")
	gw := newGateway(t, primary, backup)

	out, err := gw.Complete(context.Background(), llm.Call{
		Stage: "planner", Template: "greet", Model: "main", Fallbacks: []string{"main", "spare"},
	})
	require.NoError(t, err)
	require.Equal(t, "from backup", out)
	require.Len(t, primary.Requests(), 1)
}

func TestGatewayWrapsFailures(t *testing.T) {
	down := errors.New("connection refused")
	primary := &llmmock.Provider{ChatFn: func(context.Context, llm.ChatRequest) (llm.ChatResponse, error) {
		return llm.ChatResponse{}, down
	}}
	gw := newGateway(t, primary, nil)

	_, err := gw.Complete(context.Background(), llm.Call{Stage: "reporter", Template: "greet"})
	var callErr *llm.CallError
	require.ErrorAs(t, err, &callErr)
	require.Equal(t, "reporter", callErr.Stage)
	require.Equal(t, "main", callErr.Model)
	require.ErrorIs(t, err, down)

	_, err = gw.Complete(context.Background(), llm.Call{Stage: "reporter", Template: "missing"})
	require.ErrorAs(t, err, &callErr)
	require.ErrorContains(t, err, "unknown template missing")
}
