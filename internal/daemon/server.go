package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/PolybrainAI/polybrain-core/internal/agent"
	"github.com/PolybrainAI/polybrain-core/internal/codegen"
	"github.com/PolybrainAI/polybrain-core/internal/config"
	"github.com/PolybrainAI/polybrain-core/internal/credentials"
	"github.com/PolybrainAI/polybrain-core/internal/llm"
	"github.com/PolybrainAI/polybrain-core/internal/llm/configbuilder"
	"github.com/PolybrainAI/polybrain-core/internal/observability"
	"github.com/PolybrainAI/polybrain-core/internal/pipeline"
	"github.com/PolybrainAI/polybrain-core/internal/prompts"
	sessionrpc "github.com/PolybrainAI/polybrain-core/internal/rpc/session"
	"github.com/PolybrainAI/polybrain-core/internal/store"
	"github.com/PolybrainAI/polybrain-core/internal/tools"
	"github.com/PolybrainAI/polybrain-core/internal/version"
)

const guideFetchTimeout = 15 * time.Second

// Server hosts the session endpoints plus health and metrics.
type Server struct {
	cfg          *config.Config
	logger       *zap.Logger
	metrics      *observability.Metrics
	ledger       store.Ledger
	orchestrator *pipeline.Orchestrator
}

// OpenLedger opens the configured session ledger, or a no-op ledger when
// it is disabled.
func OpenLedger(cfg config.StoreConfig) (store.Ledger, error) {
	if !cfg.Enabled {
		return store.Nop{}, nil
	}
	ledger, err := store.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// NewServer builds every shared collaborator of the session pipeline.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	templates, err := prompts.Load()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	guide, err := prompts.LoadGuide(ctx, cfg.Pipeline.GuidePath, cfg.Pipeline.GuideURL, &http.Client{Timeout: guideFetchTimeout})
	if err != nil {
		logger.Warn("falling back to the built-in scripting guide", zap.Error(err))
		guide = prompts.BuiltinGuide()
	}
	resolver, err := credentials.FromConfig(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	sandbox, err := tools.NewSandbox(cfg.Executor)
	if err != nil {
		return nil, fmt.Errorf("build sandbox: %w", err)
	}
	ledger, err := OpenLedger(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	metrics := observability.NewMetrics()
	orchestrator := &pipeline.Orchestrator{
		LLM:      llm.NewGateway(registry, templates, metrics, logger),
		Strategy: agent.NewStrategyEngine(registry, cfg.Strategy),
		Engine: &codegen.Engine{
			Workspace:  sandbox,
			MaxRepairs: cfg.Pipeline.RepairMaxAttempts,
			Recorder:   ledger,
			Metrics:    metrics,
			Logger:     logger,
		},
		Credentials: resolver,
		Ledger:      ledger,
		Scratch:     sandbox,
		Guide:       guide,
		Limits:      pipeline.LimitsFromConfig(cfg.Pipeline),
		Metrics:     metrics,
		Logger:      logger,
	}

	return &Server{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		ledger:       ledger,
		orchestrator: orchestrator,
	}, nil
}

// Handler returns the HTTP handler: health, metrics and, when enabled, the
// Connect session stream over cleartext HTTP/2.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	if s.cfg.Server.ServesConnect() {
		path, handler := sessionrpc.NewConnectHandler(s.orchestrator, s.logger)
		mux.Handle(path, handler)
	}
	return h2c.NewHandler(mux, &http2.Server{})
}

// Run starts the listeners and blocks until context cancellation or a fatal
// error. The ledger is closed on return.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.ledger.Close(); err != nil {
			s.logger.Warn("failed to close ledger", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting polybrain daemon",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("transport", s.cfg.Server.Transport),
			zap.String("version", version.Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if s.cfg.Server.ServesLine() {
		ln, err := net.Listen("tcp", s.cfg.Server.LineAddr)
		if err != nil {
			_ = server.Close()
			return fmt.Errorf("line listener: %w", err)
		}
		g.Go(func() error {
			s.logger.Info("accepting line sessions", zap.String("addr", s.cfg.Server.LineAddr))
			lines := &sessionrpc.LineServer{Server: s.orchestrator, Logger: s.logger}
			return lines.Serve(gctx, ln)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down polybrain daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q}`, version.Version)
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
