package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/observability"
)

// Renderer turns a named prompt template and its parameters into text.
type Renderer interface {
	Render(name string, params any) (string, error)
}

// Call is one stateless completion request.
type Call struct {
	// Stage labels metrics and logs.
	Stage    string
	Template string
	Params   any
	// Model is a logical model name; empty means the registry default.
	Model     string
	Fallbacks []string
	Stop      []string
	APIKey    string
}

// CallError is returned for every failed completion, whatever the cause.
type CallError struct {
	Stage    string
	Template string
	Model    string
	Err      error
}

func (e *CallError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("llm call %s/%s (model %s): %v", e.Stage, e.Template, e.Model, e.Err)
	}
	return fmt.Sprintf("llm call %s/%s: %v", e.Stage, e.Template, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Gateway renders prompts and sends them to the resolved provider, trying
// fallback models in order when a provider fails.
type Gateway struct {
	registry *Registry
	prompts  Renderer
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewGateway builds a gateway. metrics may be nil.
func NewGateway(registry *Registry, prompts Renderer, metrics *observability.Metrics, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{registry: registry, prompts: prompts, metrics: metrics, logger: logger}
}

// Complete renders call.Template and returns the model's text reply.
func (g *Gateway) Complete(ctx context.Context, call Call) (string, error) {
	fail := func(model string, err error) (string, error) {
		return "", &CallError{Stage: call.Stage, Template: call.Template, Model: model, Err: err}
	}

	if g.prompts == nil {
		return fail("", errors.New("no prompt templates configured"))
	}
	prompt, err := g.prompts.Render(call.Template, call.Params)
	if err != nil {
		return fail("", err)
	}

	logger := g.logger.With(zap.String("stage", call.Stage), zap.String("template", call.Template))

	var lastErr error
	var lastModel string
	for _, name := range candidates(call.Model, call.Fallbacks) {
		provider, route, err := g.registry.Resolve(name)
		if err != nil {
			lastErr, lastModel = err, name
			continue
		}

		started := time.Now()
		resp, err := provider.Chat(ctx, ChatRequest{
			Model:       route.Model,
			Messages:    []ChatMessage{{Role: RoleUser, Content: prompt}},
			MaxTokens:   route.MaxTokens,
			Temperature: route.Temperature,
			Stop:        call.Stop,
			APIKey:      call.APIKey,
		})
		g.metrics.RecordModelCall(call.Stage, route.Name, err == nil)
		if err != nil {
			logger.Warn("model call failed", zap.String("model", route.Name), zap.Error(err))
			lastErr, lastModel = err, route.Name
			if ctx.Err() != nil {
				break
			}
			continue
		}

		text := truncateAtStop(resp.Message.Content, call.Stop)
		logger.Debug("model replied",
			zap.String("model", route.Name),
			zap.Duration("took", time.Since(started)),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
			zap.String("reply", text),
		)
		return text, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no model available")
	}
	return fail(lastModel, lastErr)
}

func candidates(primary string, fallbacks []string) []string {
	out := []string{primary}
	seen := map[string]struct{}{primary: {}}
	for _, fb := range fallbacks {
		if strings.TrimSpace(fb) == "" {
			continue
		}
		if _, ok := seen[fb]; ok {
			continue
		}
		seen[fb] = struct{}{}
		out = append(out, fb)
	}
	return out
}

// truncateAtStop cuts text at the earliest stop sequence, for providers
// that ignore or only partly honor the stop parameter. Leading whitespace
// is dropped first so a reply opening with a newline is not cut to nothing.
func truncateAtStop(text string, stops []string) string {
	if len(stops) == 0 {
		return text
	}
	text = strings.TrimLeft(text, " \t\r\n")
	cut := len(text)
	for _, s := range stops {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
