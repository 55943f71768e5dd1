// Package config loads the application configuration from the XDG config
// directory, with HIRO_-prefixed environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/hiro-org/hiro/internal/hitl"
	"github.com/hiro-org/hiro/internal/runtime"
)

// AppName is used for the config and data directory names.
const AppName = "hiro"

// Config is the full application configuration.
type Config struct {
	LogLevel  string `mapstructure:"logLevel"`
	LogFormat string `mapstructure:"logFormat"`
	Quiet     bool   `mapstructure:"quiet"`

	DataDir     string `mapstructure:"dataDir"`
	SnapshotDB  string `mapstructure:"snapshotDB"`
	ProfilePath string `mapstructure:"profilePath"`

	OpenAI OpenAIConfig `mapstructure:"openai"`
	Engine EngineConfig `mapstructure:"engine"`
	HITL   HITLConfig   `mapstructure:"hitl"`
	Server ServerConfig `mapstructure:"server"`
}

// OpenAIConfig configures the LLM backend.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	BaseURL string `mapstructure:"baseUrl"`
}

// EngineConfig mirrors the runtime knobs in file-friendly form.
type EngineConfig struct {
	MaxSteps            int           `mapstructure:"maxSteps"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxConcurrentNodes  int64         `mapstructure:"maxConcurrentNodes"`
	MaxPlanningLayer    int           `mapstructure:"maxPlanningLayer"`
	MaxReplanAttempts   int           `mapstructure:"maxReplanAttempts"`
	MaxRecoveryAttempts int           `mapstructure:"maxRecoveryAttempts"`
	StuckWarning        time.Duration `mapstructure:"stuckWarning"`
	StuckSoft           time.Duration `mapstructure:"stuckSoft"`
	StuckHard           time.Duration `mapstructure:"stuckHard"`
	MonitorInterval     time.Duration `mapstructure:"monitorInterval"`
}

// HITLConfig configures the human-review checkpoints.
type HITLConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	AfterPlanGeneration bool          `mapstructure:"afterPlanGeneration"`
	AfterModifiedPlan   bool          `mapstructure:"afterModifiedPlan"`
	AfterAtomizer       bool          `mapstructure:"afterAtomizer"`
	BeforeExecute       bool          `mapstructure:"beforeExecute"`
	RootPlanOnly        bool          `mapstructure:"rootPlanOnly"`
	ReviewTimeout       time.Duration `mapstructure:"reviewTimeout"`
	FailOnTimeout       bool          `mapstructure:"failOnTimeout"`
}

// ServerConfig configures the update websocket endpoint.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads config.yaml from the XDG config dir (if present), applies
// environment overrides, and fills defaults. A missing config file is fine;
// a malformed one is not.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.SnapshotDB == "" {
		cfg.SnapshotDB = filepath.Join(cfg.DataDir, "snapshots.db")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
	v.SetDefault("dataDir", filepath.Join(xdg.DataHome, AppName))
	v.SetDefault("server.addr", "127.0.0.1:8275")

	// Empty defaults so AutomaticEnv can bind these without a config file.
	v.SetDefault("openai.apiKey", "")
	v.SetDefault("openai.baseUrl", "")
	v.SetDefault("profilePath", "")
	v.SetDefault("snapshotDB", "")

	def := runtime.DefaultConfig()
	v.SetDefault("engine.maxSteps", def.MaxSteps)
	v.SetDefault("engine.timeout", def.Timeout)
	v.SetDefault("engine.maxConcurrentNodes", def.MaxConcurrentNodes)
	v.SetDefault("engine.maxPlanningLayer", def.MaxPlanningLayer)
	v.SetDefault("engine.maxReplanAttempts", def.MaxReplanAttempts)
	v.SetDefault("engine.maxRecoveryAttempts", def.MaxRecoveryAttempts)
	v.SetDefault("engine.stuckWarning", def.StuckWarning)
	v.SetDefault("engine.stuckSoft", def.StuckSoft)
	v.SetDefault("engine.stuckHard", def.StuckHard)
	v.SetDefault("engine.monitorInterval", def.MonitorInterval)

	v.SetDefault("hitl.reviewTimeout", 5*time.Minute)
}

// RuntimeConfig converts the engine section to the runtime's form.
func (c *Config) RuntimeConfig() runtime.Config {
	return runtime.Config{
		MaxSteps:            c.Engine.MaxSteps,
		Timeout:             c.Engine.Timeout,
		MaxConcurrentNodes:  c.Engine.MaxConcurrentNodes,
		MaxPlanningLayer:    c.Engine.MaxPlanningLayer,
		MaxReplanAttempts:   c.Engine.MaxReplanAttempts,
		MaxRecoveryAttempts: c.Engine.MaxRecoveryAttempts,
		StuckWarning:        c.Engine.StuckWarning,
		StuckSoft:           c.Engine.StuckSoft,
		StuckHard:           c.Engine.StuckHard,
		MonitorInterval:     c.Engine.MonitorInterval,
	}
}

// HITLCoordinatorConfig converts the hitl section to the coordinator's form.
// When the section is disabled every checkpoint is off.
func (c *Config) HITLCoordinatorConfig() hitl.Config {
	if !c.HITL.Enabled {
		return hitl.Config{}
	}
	policy := hitl.TimeoutAutoApprove
	if c.HITL.FailOnTimeout {
		policy = hitl.TimeoutFail
	}
	return hitl.Config{
		AfterPlanGeneration: c.HITL.AfterPlanGeneration,
		AfterModifiedPlan:   c.HITL.AfterModifiedPlan,
		AfterAtomizer:       c.HITL.AfterAtomizer,
		BeforeExecute:       c.HITL.BeforeExecute,
		RootPlanOnly:        c.HITL.RootPlanOnly,
		ReviewTimeout:       c.HITL.ReviewTimeout,
		TimeoutPolicy:       policy,
	}
}
