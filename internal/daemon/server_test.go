package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/config"
	"github.com/PolybrainAI/polybrain-core/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {Type: "openai", BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		},
		Models: map[string]config.ModelConfig{
			"main": {Provider: "openai", Model: "gpt-4o", Default: true},
		},
		Pipeline: config.PipelineConfig{
			ClarifierMaxTurns:    10,
			PlannerMaxIterations: 7,
			CoderMaxIterations:   10,
			RepairMaxAttempts:    10,
			GuidePath:            filepath.Join(dir, "missing-guide.md"),
		},
		Executor: config.ExecutorConfig{
			Interpreter:    "python",
			ScratchDir:     filepath.Join(dir, "scratch"),
			TimeoutSeconds: 30,
		},
		Credentials: config.CredentialsConfig{
			Static: &config.StaticBundle{ModelAPIKey: "sk", CADAccessKey: "ak", CADSecretKey: "sec"},
		},
		Store:  config.StoreConfig{Enabled: true, Path: filepath.Join(dir, "ledger.db")},
		Server: config.ServerConfig{Addr: "127.0.0.1:0", MetricsEnabled: true, Transport: "connect"},
	}
}

func TestHandlerServesHealthAndMetrics(t *testing.T) {
	s, err := NewServer(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.ledger.Close() })
	require.Contains(t, s.orchestrator.Guide, "OnPy")

	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	s.metrics.RecordSession(store.StatusCompleted)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "polybrain_sessions_total")
}

func TestMetricsCanBeDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.MetricsEnabled = false
	s, err := NewServer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.ledger.Close() })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServerRequiresCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = config.CredentialsConfig{}
	_, err := NewServer(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "credentials")
}

func TestOpenLedgerDisabled(t *testing.T) {
	ledger, err := OpenLedger(config.StoreConfig{Enabled: false})
	require.NoError(t, err)
	require.IsType(t, store.Nop{}, ledger)
}
