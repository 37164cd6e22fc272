// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. The composition root
// (cmd/) is the only place that reads viper or the environment; every other
// package receives one of these sections explicitly.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Device  DeviceConfig  `mapstructure:"device" yaml:"device"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different console log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// DeviceConfig tunes the ADB transport and the screenshot pipeline.
type DeviceConfig struct {
	ADBPath        string        `mapstructure:"adb_path" yaml:"adb_path"`
	Serial         string        `mapstructure:"serial" yaml:"serial"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// Screenshot longest-side cap before re-encoding for the LLM payload.
	ScreenshotMaxSide int `mapstructure:"screenshot_max_side" yaml:"screenshot_max_side"`
	ScreenshotQuality int `mapstructure:"screenshot_quality" yaml:"screenshot_quality"`
}

// LLMConfig configures the model profile routing.
type LLMConfig struct {
	// DefaultProfile names the entry in Profiles used when no profile is
	// selected on the command line.
	DefaultProfile string                  `mapstructure:"default_profile" yaml:"default_profile"`
	Profiles       map[string]ModelProfile `mapstructure:"profiles" yaml:"profiles"`
}

// LLMProvider defines the supported LLM transport families.
type LLMProvider string

const (
	// ProviderOpenAI covers every OpenAI-compatible chat completions endpoint
	// (vLLM, stepfun, bigmodel, modelscope, z.ai and friends).
	ProviderOpenAI LLMProvider = "openai"
)

// ModelProfile defines the configuration for a single LLM endpoint.
type ModelProfile struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute bounds the request rate against the API; zero disables
	// the limiter.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ReplyMode selects how an agent question to the user is resolved.
type ReplyMode string

const (
	ReplyAuto     ReplyMode = "auto"     // The LLM answers on the user's behalf.
	ReplyManual   ReplyMode = "manual"   // Block on interactive console input.
	ReplyCallback ReplyMode = "callback" // Invoke a caller-supplied function.
	ReplyPause    ReplyMode = "pause"    // Persist the session paused and stop.
)

// AgentConfig holds settings for the control loop.
type AgentConfig struct {
	MaxSteps       int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepDelay      time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	MaxParseErrors int           `mapstructure:"max_parse_errors" yaml:"max_parse_errors"`
	MaxLoopRepeats int           `mapstructure:"max_loop_repeats" yaml:"max_loop_repeats"`
	HistoryWindow  int           `mapstructure:"history_window" yaml:"history_window"`
	ReplyMode      ReplyMode     `mapstructure:"reply_mode" yaml:"reply_mode"`
	Language       string        `mapstructure:"language" yaml:"language"`
	AutoWake       bool          `mapstructure:"auto_wake" yaml:"auto_wake"`
	UsePlannerLLM  bool          `mapstructure:"use_planner_llm" yaml:"use_planner_llm"`
}

// Session store backends.
const (
	SessionBackendFile     = "file"
	SessionBackendPostgres = "postgres"
)

// SessionConfig selects and tunes the session store backend.
type SessionConfig struct {
	// Backend is "file" or "postgres".
	Backend     string        `mapstructure:"backend" yaml:"backend"`
	Root        string        `mapstructure:"root" yaml:"root"`
	PostgresURL string        `mapstructure:"postgres_url" yaml:"-"`
	CleanupAge  time.Duration `mapstructure:"cleanup_age" yaml:"cleanup_age"`
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "omg-agent")
	v.SetDefault("logger.log_file", "omg-agent.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Device --
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.command_timeout", "10s")
	v.SetDefault("device.screenshot_max_side", 1280)
	v.SetDefault("device.screenshot_quality", 80)

	// -- LLM --
	v.SetDefault("llm.default_profile", "local")
	v.SetDefault("llm.profiles.local.provider", "openai")
	v.SetDefault("llm.profiles.local.base_url", "http://localhost:8000/v1")
	v.SetDefault("llm.profiles.local.model", "autoglm-phone-9b")
	v.SetDefault("llm.profiles.local.api_timeout", "60s")
	v.SetDefault("llm.profiles.local.temperature", 0.7)
	v.SetDefault("llm.profiles.local.top_p", 0.9)
	v.SetDefault("llm.profiles.local.max_tokens", 4096)

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.step_delay", "1s")
	v.SetDefault("agent.max_parse_errors", 3)
	v.SetDefault("agent.max_loop_repeats", 5)
	v.SetDefault("agent.history_window", 10)
	v.SetDefault("agent.reply_mode", "manual")
	v.SetDefault("agent.language", "en")
	v.SetDefault("agent.auto_wake", true)
	v.SetDefault("agent.use_planner_llm", false)

	// -- Session --
	v.SetDefault("session.backend", "file")
	v.SetDefault("session.root", "~/.omg-agent/sessions")
	v.SetDefault("session.cleanup_age", "168h")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data. Every configured profile
	// gets its own key variable; OMG_LLM_API_KEY covers the default profile.
	for name := range v.GetStringMap("llm.profiles") {
		v.BindEnv("llm.profiles."+name+".api_key",
			"OMG_LLM_PROFILES_"+strings.ToUpper(name)+"_API_KEY")
	}
	if def := v.GetString("llm.default_profile"); def != "" {
		v.BindEnv("llm.profiles."+def+".api_key", "OMG_LLM_API_KEY")
	}
	v.BindEnv("session.postgres_url", "OMG_SESSION_POSTGRES_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Normalize resolves home-relative paths to absolute ones.
func (c *Config) Normalize() error {
	if strings.HasPrefix(c.Session.Root, "~") {
		expanded, err := homedir.Expand(c.Session.Root)
		if err != nil {
			return fmt.Errorf("failed to expand session root %q: %w", c.Session.Root, err)
		}
		c.Session.Root = filepath.Clean(expanded)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.MaxParseErrors <= 0 {
		return fmt.Errorf("agent.max_parse_errors must be a positive integer")
	}
	if c.Agent.MaxLoopRepeats <= 0 {
		return fmt.Errorf("agent.max_loop_repeats must be a positive integer")
	}
	switch c.Agent.ReplyMode {
	case ReplyAuto, ReplyManual, ReplyCallback, ReplyPause:
	default:
		return fmt.Errorf("agent.reply_mode must be one of auto, manual, callback, pause")
	}
	switch c.Session.Backend {
	case SessionBackendFile:
		if c.Session.Root == "" {
			return fmt.Errorf("session.root is required for the file backend")
		}
	case SessionBackendPostgres:
		if c.Session.PostgresURL == "" {
			return fmt.Errorf("session.postgres_url is required for the postgres backend (set OMG_SESSION_POSTGRES_URL)")
		}
	default:
		return fmt.Errorf("session.backend must be \"file\" or \"postgres\"")
	}
	if c.LLM.DefaultProfile != "" {
		if _, ok := c.LLM.Profiles[c.LLM.DefaultProfile]; !ok {
			return fmt.Errorf("llm.default_profile %q has no matching entry under llm.profiles", c.LLM.DefaultProfile)
		}
	}
	for name, p := range c.LLM.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("llm profile %q invalid: %w", name, err)
		}
	}
	if c.Device.ScreenshotQuality < 1 || c.Device.ScreenshotQuality > 100 {
		return fmt.Errorf("device.screenshot_quality must be between 1 and 100")
	}
	return nil
}

// Validate checks a single model profile.
func (p ModelProfile) Validate() error {
	if p.Provider != ProviderOpenAI {
		return fmt.Errorf("unsupported provider %q", p.Provider)
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if p.Model == "" {
		return fmt.Errorf("model is required")
	}
	if p.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	return nil
}

// Profile returns the named model profile, falling back to the default.
func (c *Config) Profile(name string) (ModelProfile, error) {
	if name == "" {
		name = c.LLM.DefaultProfile
	}
	p, ok := c.LLM.Profiles[name]
	if !ok {
		return ModelProfile{}, fmt.Errorf("unknown llm profile %q", name)
	}
	return p, nil
}
