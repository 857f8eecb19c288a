// Package agent implements the pipeline stages and the loop they share for
// driving a model through tool invocations.
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/llm"
	"github.com/PolybrainAI/polybrain-core/internal/logging"
	"github.com/PolybrainAI/polybrain-core/internal/observability"
	"github.com/PolybrainAI/polybrain-core/internal/session"
)

// Completer runs one prompt template against a model. *llm.Gateway
// implements it.
type Completer interface {
	Complete(ctx context.Context, call llm.Call) (string, error)
}

// Human is the person on the other end of the session. *bridge.Client
// implements it; both calls block until the transport answers.
type Human interface {
	AskHuman(question string) (string, error)
	EmitStatus(msg bridge.StatusMessage) error
}

// Capabilities is what every stage can do.
type Capabilities interface {
	CallLLM(ctx context.Context, template string, params map[string]any, stop ...string) (string, error)
	QueryHuman(question string) (string, error)
	SendMessage(msg bridge.StatusMessage) error
	Credentials() session.Credentials
}

// Env is the per-session wiring handed to each stage.
type Env struct {
	LLM      Completer
	Human    Human
	Session  *session.Session
	Strategy *StrategyEngine
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Base implements Capabilities for one stage.
type Base struct {
	env    Env
	stage  Stage
	logger *zap.Logger
}

var _ Capabilities = (*Base)(nil)

// NewBase binds env to a stage.
func NewBase(env Env, stage Stage) Base {
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return Base{env: env, stage: stage, logger: logging.ForStage(logger, string(stage))}
}

// Stage returns the stage this base serves.
func (b *Base) Stage() Stage {
	return b.stage
}

// Logger returns the stage logger.
func (b *Base) Logger() *zap.Logger {
	return b.logger
}

// CallLLM renders template with params and returns the model's reply. The
// session's model key is used when it has one.
func (b *Base) CallLLM(ctx context.Context, template string, params map[string]any, stop ...string) (string, error) {
	return b.callAs(ctx, b.stage, template, params, stop...)
}

func (b *Base) callAs(ctx context.Context, stage Stage, template string, params map[string]any, stop ...string) (string, error) {
	model, fallbacks := b.env.Strategy.Route(stage)
	return b.env.LLM.Complete(ctx, llm.Call{
		Stage:     string(stage),
		Template:  template,
		Params:    params,
		Model:     model,
		Fallbacks: fallbacks,
		Stop:      stop,
		APIKey:    b.Credentials().ModelAPIKey,
	})
}

// QueryHuman asks the user a question and waits for the answer.
func (b *Base) QueryHuman(question string) (string, error) {
	b.logger.Debug("asking user", zap.String("question", question))
	answer, err := b.env.Human.AskHuman(question)
	if err != nil {
		return "", err
	}
	b.logger.Debug("user answered", zap.String("answer", answer))
	return answer, nil
}

// SendMessage emits a status message and waits for it to be written.
func (b *Base) SendMessage(msg bridge.StatusMessage) error {
	return b.env.Human.EmitStatus(msg)
}

// Credentials returns the session's credentials.
func (b *Base) Credentials() session.Credentials {
	if b.env.Session == nil {
		return session.Credentials{}
	}
	return b.env.Session.Credentials
}

func (b *Base) metrics() *observability.Metrics {
	return b.env.Metrics
}
