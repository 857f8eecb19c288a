// Package pipeline opens sessions and runs the fixed sequence of agent
// stages for each of them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PolybrainAI/polybrain-core/internal/agent"
	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/codegen"
	"github.com/PolybrainAI/polybrain-core/internal/config"
	"github.com/PolybrainAI/polybrain-core/internal/credentials"
	"github.com/PolybrainAI/polybrain-core/internal/logging"
	"github.com/PolybrainAI/polybrain-core/internal/observability"
	"github.com/PolybrainAI/polybrain-core/internal/rpc"
	"github.com/PolybrainAI/polybrain-core/internal/session"
	"github.com/PolybrainAI/polybrain-core/internal/store"
)

// Closing messages.
const (
	CreatedMessage    = "Your model has been created!"
	UnacceptedMessage = "Modeling is finished, but the model was never confirmed. The last version is in your document."
	BudgetMessage     = "Sorry, I could not write a working script for this model. Please try rephrasing your request."
	InternalMessage   = "LLM Chain experienced an unrecoverable error"
)

// Limits are the iteration ceilings of the stages.
type Limits struct {
	ClarifierMaxTurns    int
	PlannerMaxIterations int
	CoderMaxIterations   int
	MathEnabled          bool
}

// LimitsFromConfig reads the stage ceilings from pipeline config.
func LimitsFromConfig(cfg config.PipelineConfig) Limits {
	return Limits{
		ClarifierMaxTurns:    cfg.ClarifierMaxTurns,
		PlannerMaxIterations: cfg.PlannerMaxIterations,
		CoderMaxIterations:   cfg.CoderMaxIterations,
		MathEnabled:          cfg.MathEnabled,
	}
}

// Scratch removes a session's script files.
type Scratch interface {
	Cleanup(sessionID string) error
}

// Orchestrator serves sessions. It holds only shared, read-only
// collaborators; everything per session lives in Serve's call frame.
type Orchestrator struct {
	LLM         agent.Completer
	Strategy    *agent.StrategyEngine
	Engine      *codegen.Engine
	Credentials credentials.Resolver
	Ledger      store.Ledger
	Scratch     Scratch
	Guide       string
	Limits      Limits
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	// NewID generates session ids; random UUIDs when nil.
	NewID func() string
}

// Serve runs one session over transport until it ends. transportName
// labels metrics and the ledger. A session that was closed with a final or
// error frame returns nil; a lost transport returns an error wrapping
// bridge.ErrTransport.
func (o *Orchestrator) Serve(ctx context.Context, transportName string, transport bridge.Transport) error {
	o.Metrics.IncActiveSessions(transportName)
	defer o.Metrics.DecActiveSessions(transportName)

	client, task := bridge.New(transport,
		bridge.WithLogger(o.logger()),
		bridge.WithMetrics(o.Metrics, transportName),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return task.Run(gctx)
	})
	g.Go(func() error {
		defer client.Close()
		return o.session(gctx, client, transportName)
	})
	return g.Wait()
}

func (o *Orchestrator) session(ctx context.Context, client *bridge.Client, transportName string) error {
	newID := o.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	sess, err := Handshake(ctx, client, o.Credentials, newID)
	if sess == nil {
		status := Classify(err)
		o.Metrics.RecordSession(status)
		if status == store.StatusAuthError {
			o.logger().Warn("session rejected", zap.String("transport", transportName), zap.Error(err))
			return nil
		}
		o.logger().Info("client left before the session started", zap.String("transport", transportName), zap.Error(err))
		return err
	}

	logger := logging.ForSession(o.logger(), sess.ID)
	ledger := o.ledger()
	record := context.WithoutCancel(ctx)
	if lerr := ledger.StartSession(record, store.SessionRecord{
		ID:         sess.ID,
		DocumentID: sess.DocumentID,
		Transport:  transportName,
		StartedAt:  sess.StartedAt,
	}); lerr != nil {
		logger.Warn("ledger: start session", zap.Error(lerr))
	}
	if o.Scratch != nil {
		defer func() {
			if cerr := o.Scratch.Cleanup(sess.ID); cerr != nil {
				logger.Warn("failed to remove session scripts", zap.Error(cerr))
			}
		}()
	}

	var result agent.CodeResult
	if err == nil {
		logger.Info("session started", zap.String("document_id", sess.DocumentID), zap.String("credentials", sess.Credentials.String()))
		if lerr := ledger.SetRequest(record, sess.ID, sess.Request); lerr != nil {
			logger.Warn("ledger: set request", zap.Error(lerr))
		}
		result, err = o.run(ctx, client, sess, logger)
	}

	status := Classify(err)
	if err == nil && !result.Accepted {
		status = store.StatusUnaccepted
	}
	o.Metrics.RecordSession(status)
	if lerr := ledger.FinishSession(record, sess.ID, status, detail(err)); lerr != nil {
		logger.Warn("ledger: finish session", zap.Error(lerr))
	}

	return o.close(client, logger, status, err)
}

// close sends the frame that ends the session for status.
func (o *Orchestrator) close(client *bridge.Client, logger *zap.Logger, status string, err error) error {
	var closeErr error
	switch status {
	case store.StatusCompleted:
		logger.Info("session completed")
		closeErr = client.EndSession(bridge.FinalMessage(CreatedMessage))
	case store.StatusUnaccepted:
		logger.Info("session ended without an accepted model")
		closeErr = client.EndSession(bridge.FinalMessage(UnacceptedMessage))
	case store.StatusBudgetExhausted:
		logger.Error("session failed", zap.String("status", status), zap.String("last_error", detail(err)), zap.Error(err))
		closeErr = client.Abort(rpc.ErrorFrame{Name: rpc.ErrInternal, Message: BudgetMessage, Operation: "execute"})
	case store.StatusTransportError:
		logger.Error("session lost its transport", zap.Error(err))
		return err
	default:
		logger.Error("session failed", zap.String("status", status), zap.Error(err))
		closeErr = client.Abort(rpc.ErrorFrame{Name: rpc.ErrInternal, Message: InternalMessage})
	}
	if closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return nil
}

// run drives the stages in order, each one's output feeding the next.
func (o *Orchestrator) run(ctx context.Context, client *bridge.Client, sess *session.Session, logger *zap.Logger) (agent.CodeResult, error) {
	env := agent.Env{
		LLM:      o.LLM,
		Human:    client,
		Session:  sess,
		Strategy: o.Strategy,
		Metrics:  o.Metrics,
		Logger:   logger,
	}

	var request string
	err := o.stage(ctx, sess.ID, logger, agent.StageClarifier, func() (string, error) {
		var err error
		request, err = agent.NewClarifier(env, o.Limits.ClarifierMaxTurns).Invoke(ctx, sess.Request)
		return request, err
	})
	if err != nil {
		return agent.CodeResult{}, err
	}

	var notes string
	err = o.stage(ctx, sess.ID, logger, agent.StageMathematician, func() (string, error) {
		var err error
		notes, err = agent.NewMathematician(env, o.Limits.MathEnabled).Invoke(ctx, request)
		return notes, err
	})
	if err != nil {
		return agent.CodeResult{}, err
	}

	var plan agent.Plan
	err = o.stage(ctx, sess.ID, logger, agent.StagePlanner, func() (string, error) {
		var err error
		plan, err = agent.NewPlanner(env, o.Limits.PlannerMaxIterations).Invoke(ctx, request, notes)
		if plan.Degraded {
			return "degraded: " + plan.Outline, err
		}
		return plan.Outline, err
	})
	if err != nil {
		return agent.CodeResult{}, err
	}

	err = o.stage(ctx, sess.ID, logger, agent.StageReporter, func() (string, error) {
		return agent.NewReporter(env).Invoke(ctx, plan.Outline)
	})
	if err != nil {
		return agent.CodeResult{}, err
	}

	var result agent.CodeResult
	err = o.stage(ctx, sess.ID, logger, agent.StageCoder, func() (string, error) {
		var err error
		result, err = agent.NewCoder(env, o.Engine, o.Guide, o.Limits.CoderMaxIterations).Invoke(ctx, request, plan.Outline)
		return fmt.Sprintf("accepted=%t iterations=%d attempt=%d", result.Accepted, result.Iterations, result.Attempt.Index), err
	})
	return result, err
}

// stage times fn and records its outcome.
func (o *Orchestrator) stage(ctx context.Context, sessionID string, logger *zap.Logger, stage agent.Stage, fn func() (string, error)) error {
	logger.Info("stage started", zap.String("stage", string(stage)))
	started := time.Now()
	out, err := fn()
	took := time.Since(started)

	outcome := "ok"
	if err != nil {
		outcome = Classify(err)
		out = err.Error()
	}
	o.Metrics.RecordStage(string(stage), outcome, took)
	if lerr := o.ledger().RecordStage(context.WithoutCancel(ctx), sessionID, store.StageEvent{
		Stage:      string(stage),
		Outcome:    outcome,
		Duration:   took,
		Detail:     out,
		RecordedAt: time.Now(),
	}); lerr != nil {
		logger.Warn("ledger: record stage", zap.String("stage", string(stage)), zap.Error(lerr))
	}

	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	logger.Info("stage finished", zap.String("stage", string(stage)), zap.Duration("took", took))
	logger.Debug("stage output", zap.String("stage", string(stage)), zap.String("output", out))
	return nil
}

func (o *Orchestrator) ledger() store.Ledger {
	if o.Ledger == nil {
		return store.Nop{}
	}
	return o.Ledger
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
