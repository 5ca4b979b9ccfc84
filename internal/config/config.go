package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/visibility-cli/internal/orchestrator"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig         `yaml:"store" mapstructure:"store"`
	Server       ServerConfig        `yaml:"server" mapstructure:"server"`
	Log          LogConfig           `yaml:"log" mapstructure:"log"`
	Anthropic    AnthropicConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI       OpenAIConfig        `yaml:"openai" mapstructure:"openai"`
	Perplexity   PerplexityConfig    `yaml:"perplexity" mapstructure:"perplexity"`
	Orchestrator orchestrator.Config `yaml:"orchestrator" mapstructure:"orchestrator"`
	Analysis     AnalysisConfig      `yaml:"analysis" mapstructure:"analysis"`
	Discovery    DiscoveryConfig     `yaml:"discovery" mapstructure:"discovery"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnalysisConfig selects the models used for scoring and narrative work.
type AnalysisConfig struct {
	JudgeModel   string `yaml:"judge_model" mapstructure:"judge_model"`
	InsightModel string `yaml:"insight_model" mapstructure:"insight_model"`
	// RegistryPath points at a YAML model registry; empty uses the built-in
	// default set.
	RegistryPath string `yaml:"registry_path" mapstructure:"registry_path"`
}

// DiscoveryConfig tunes keyword and phrase generation.
type DiscoveryConfig struct {
	KeywordLimit      int `yaml:"keyword_limit" mapstructure:"keyword_limit"`
	PhrasesPerKeyword int `yaml:"phrases_per_keyword" mapstructure:"phrases_per_keyword"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "visibility.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("orchestrator.max_concurrent", 4)
	v.SetDefault("orchestrator.batch_timeout", 10*time.Minute)
	v.SetDefault("analysis.judge_model", "claude-haiku-4-5-20251001")
	v.SetDefault("analysis.insight_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("discovery.keyword_limit", 10)
	v.SetDefault("discovery.phrases_per_keyword", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode.
// Modes: serve, analyze, migrate.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}
	requireModels := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	}

	switch mode {
	case "serve":
		requireStore()
		requireModels()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "analyze":
		requireStore()
		requireModels()
	case "migrate":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Orchestrator.MaxConcurrent < 0 || c.Orchestrator.MaxConcurrent > 64 {
		problems = append(problems, "orchestrator.max_concurrent must be between 0 and 64")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s mode: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
