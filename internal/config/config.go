package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level daemon configuration loaded from YAML and ENV.
type Config struct {
	Version     string                    `mapstructure:"version"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Models      map[string]ModelConfig    `mapstructure:"models"`
	Strategy    StrategyConfig            `mapstructure:"strategy"`
	Pipeline    PipelineConfig            `mapstructure:"pipeline"`
	Executor    ExecutorConfig            `mapstructure:"executor"`
	Credentials CredentialsConfig         `mapstructure:"credentials"`
	Store       StoreConfig               `mapstructure:"store"`
	Logging     LoggingConfig             `mapstructure:"logging"`
	Server      ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents LLM provider configuration such as OpenAI, Ollama, or custom gateways.
type ProviderConfig struct {
	Type      string        `mapstructure:"type"`       // openai, openrouter, ollama, vllm, lmstudio, custom
	Model     string        `mapstructure:"model"`      // default model for the provider
	BaseURL   string        `mapstructure:"base_url"`   // API base URL
	APIKey    string        `mapstructure:"api_key"`    // fallback key when the session carries none
	Timeout   time.Duration `mapstructure:"timeout"`    // request timeout
	MaxTokens int           `mapstructure:"max_tokens"` // optional provider-level token cap
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// PipelineConfig holds the iteration ceilings of the agent stages.
type PipelineConfig struct {
	ClarifierMaxTurns    int    `mapstructure:"clarifier_max_turns"`
	PlannerMaxIterations int    `mapstructure:"planner_max_iterations"`
	CoderMaxIterations   int    `mapstructure:"coder_max_iterations"`
	RepairMaxAttempts    int    `mapstructure:"repair_max_attempts"`
	MathEnabled          bool   `mapstructure:"math_enabled"`
	GuidePath            string `mapstructure:"guide_path"` // scripting library guide for the coder prompt
	GuideURL             string `mapstructure:"guide_url"`  // fetched once at startup when guide_path is empty
}

// ExecutorConfig controls how generated scripts are written and run.
type ExecutorConfig struct {
	Interpreter         string   `mapstructure:"interpreter"`
	AllowedInterpreters []string `mapstructure:"allowed_interpreters"`
	ScratchDir          string   `mapstructure:"scratch_dir"`
	TimeoutSeconds      int      `mapstructure:"timeout_seconds"`
	KeepScripts         bool     `mapstructure:"keep_scripts"`
}

// CredentialsConfig points at the credential bundle source.
type CredentialsConfig struct {
	Path   string        `mapstructure:"path"` // TOML file keyed by user token
	Static *StaticBundle `mapstructure:"static"`
}

// StaticBundle is a single development bundle handed to every session.
type StaticBundle struct {
	ModelAPIKey  string `mapstructure:"model_api_key"`
	CADAccessKey string `mapstructure:"cad_access_key"`
	CADSecretKey string `mapstructure:"cad_secret_key"`
}

// StoreConfig configures the session ledger.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	LineAddr       string `mapstructure:"line_addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect, line or both
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: POLYBRAIN_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POLYBRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("pipeline.clarifier_max_turns", 10)
	v.SetDefault("pipeline.planner_max_iterations", 7)
	v.SetDefault("pipeline.coder_max_iterations", 10)
	v.SetDefault("pipeline.repair_max_attempts", 10)
	v.SetDefault("pipeline.math_enabled", false)
	v.SetDefault("pipeline.guide_path", "")
	v.SetDefault("pipeline.guide_url", "")

	v.SetDefault("executor.interpreter", "python")
	v.SetDefault("executor.allowed_interpreters", []string{"python", "python3"})
	v.SetDefault("executor.scratch_dir", ".polybrain/scratch")
	v.SetDefault("executor.timeout_seconds", 300)
	v.SetDefault("executor.keep_scripts", false)

	v.SetDefault("credentials.path", "")

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", ".polybrain/ledger.db")

	v.SetDefault("strategy.default_model", "")
	v.SetDefault("strategy.clarifier_model", "")
	v.SetDefault("strategy.mathematician_model", "")
	v.SetDefault("strategy.planner_model", "")
	v.SetDefault("strategy.reporter_model", "")
	v.SetDefault("strategy.coder_model", "")
	v.SetDefault("strategy.classifier_model", "")
	v.SetDefault("strategy.fallbacks", []string{})

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.line_addr", ":5000")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	var defaultFound bool
	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if c.Pipeline.ClarifierMaxTurns <= 0 {
		return errors.New("pipeline.clarifier_max_turns must be > 0")
	}
	if c.Pipeline.PlannerMaxIterations <= 0 {
		return errors.New("pipeline.planner_max_iterations must be > 0")
	}
	if c.Pipeline.CoderMaxIterations <= 0 {
		return errors.New("pipeline.coder_max_iterations must be > 0")
	}
	if c.Pipeline.RepairMaxAttempts <= 0 {
		return errors.New("pipeline.repair_max_attempts must be > 0")
	}

	if strings.TrimSpace(c.Executor.Interpreter) == "" {
		return errors.New("executor.interpreter must be set")
	}
	if c.Executor.TimeoutSeconds <= 0 {
		return errors.New("executor.timeout_seconds must be > 0")
	}
	if len(c.Executor.AllowedInterpreters) > 0 {
		var allowed bool
		for _, name := range c.Executor.AllowedInterpreters {
			if name == c.Executor.Interpreter {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("executor.interpreter %q is not in executor.allowed_interpreters", c.Executor.Interpreter)
		}
	}

	for _, modelID := range c.Strategy.roleModels() {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy references unknown model %q", modelID)
		}
	}
	for _, modelID := range c.Strategy.Fallbacks {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}

	if c.Store.Enabled && strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("store.path must be set when store.enabled is true")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "line", "both":
	default:
		return fmt.Errorf("server.transport must be one of connect, line or both, got %q", c.Server.Transport)
	}

	return nil
}

// ServesConnect reports whether the connect stream endpoint is enabled.
func (s ServerConfig) ServesConnect() bool {
	switch strings.ToLower(strings.TrimSpace(s.Transport)) {
	case "", "connect", "both":
		return true
	}
	return false
}

// ServesLine reports whether the raw line listener is enabled.
func (s ServerConfig) ServesLine() bool {
	switch strings.ToLower(strings.TrimSpace(s.Transport)) {
	case "line", "both":
		return true
	}
	return false
}
