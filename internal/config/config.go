// Package config loads wingman settings from defaults, an optional
// wingman.yaml and WINGMAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/wingman/pkg/audioio"
	"github.com/teslashibe/wingman/pkg/live"
	"github.com/teslashibe/wingman/pkg/session"
)

const (
	configName = "wingman"
	configType = "yaml"
	envPrefix  = "WINGMAN"
)

// Config is the full application configuration.
type Config struct {
	Log     LogConfig      `mapstructure:"log"`
	Server  ServerConfig   `mapstructure:"server"`
	Agent   AgentConfig    `mapstructure:"agent"`
	Session SessionConfig  `mapstructure:"session"`
	Audio   audioio.Config `mapstructure:"audio"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the dashboard API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// AgentConfig describes the remote agent.
type AgentConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
	Voice string `mapstructure:"voice"`

	// SystemInstruction is sent verbatim. SystemInstructionFile, when set,
	// replaces it with the file's contents.
	SystemInstruction     string `mapstructure:"system_instruction"`
	SystemInstructionFile string `mapstructure:"system_instruction_file"`

	SignOff string `mapstructure:"sign_off"`

	// APIKey also binds GEMINI_API_KEY and GOOGLE_API_KEY.
	APIKey string `mapstructure:"api_key"`

	// UseADC falls back to Google application default credentials.
	UseADC bool `mapstructure:"use_adc"`

	SetupTimeout time.Duration `mapstructure:"setup_timeout"`
}

// SessionConfig holds controller timings.
type SessionConfig struct {
	GracePeriod          time.Duration `mapstructure:"grace_period"`
	SafetyTimeout        time.Duration `mapstructure:"safety_timeout"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	MaxReconnectDelay    time.Duration `mapstructure:"max_reconnect_delay"`
	FrameQueue           int           `mapstructure:"frame_queue"`
}

func setDefaults(v *viper.Viper) {
	sc := session.DefaultConfig()
	ac := audioio.DefaultConfig()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")

	v.SetDefault("server.addr", "127.0.0.1:8787")

	v.SetDefault("agent.url", live.GeminiURL)
	v.SetDefault("agent.model", sc.Model)
	v.SetDefault("agent.voice", sc.Voice)
	v.SetDefault("agent.system_instruction", "")
	v.SetDefault("agent.system_instruction_file", "")
	v.SetDefault("agent.sign_off", sc.SignOffText)
	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.use_adc", false)
	v.SetDefault("agent.setup_timeout", 15*time.Second)

	v.SetDefault("session.grace_period", sc.GracePeriod)
	v.SetDefault("session.safety_timeout", sc.SafetyTimeout)
	v.SetDefault("session.heartbeat_interval", sc.HeartbeatInterval)
	v.SetDefault("session.max_reconnect_attempts", sc.MaxReconnectAttempts)
	v.SetDefault("session.max_reconnect_delay", sc.MaxReconnectDelay)
	v.SetDefault("session.frame_queue", sc.FrameQueue)

	v.SetDefault("audio.backend", string(ac.Backend))
	v.SetDefault("audio.input_sample_rate", ac.InputSampleRate)
	v.SetDefault("audio.output_sample_rate", ac.OutputSampleRate)
	v.SetDefault("audio.period_frames", ac.PeriodFrames)
	v.SetDefault("audio.output_buffer", ac.OutputBuffer)
}

// Load reads configuration. An explicit path must exist; otherwise
// wingman.yaml is looked up in the working directory and the user config
// directory, and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("agent.api_key", envPrefix+"_AGENT_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("config: bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if f := cfg.Agent.SystemInstructionFile; f != "" {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("config: read system instruction: %w", err)
		}
		cfg.Agent.SystemInstruction = strings.TrimSpace(string(data))
	}
	return &cfg, nil
}

// SessionConfig converts to controller settings.
func (c *Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.Model = c.Agent.Model
	sc.Voice = c.Agent.Voice
	sc.SystemInstruction = c.Agent.SystemInstruction
	sc.SignOffText = c.Agent.SignOff
	sc.GracePeriod = c.Session.GracePeriod
	sc.SafetyTimeout = c.Session.SafetyTimeout
	sc.HeartbeatInterval = c.Session.HeartbeatInterval
	sc.MaxReconnectAttempts = c.Session.MaxReconnectAttempts
	sc.MaxReconnectDelay = c.Session.MaxReconnectDelay
	sc.OutputSampleRate = c.Audio.OutputSampleRate
	sc.FrameQueue = c.Session.FrameQueue
	return sc
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.URL == "" {
		errs = append(errs, errors.New("config: agent.url is required"))
	}
	if c.Agent.SetupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: agent.setup_timeout must be positive, got %v", c.Agent.SetupTimeout))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("config: server.addr is required"))
	}
	if err := c.Audio.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.SessionConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
