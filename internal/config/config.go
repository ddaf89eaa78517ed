// Package config loads go-coach configuration from a YAML file, a .env file
// and COACH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (COACH_VOICE_MODEL, ...).
const EnvPrefix = "COACH"

// Credential environment variables, checked in order.
var apiKeyEnv = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}

// Config holds all configuration for the coach binary.
// Flag parsing is done in cmd/coach; this struct is data only.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Voice   VoiceConfig   `mapstructure:"voice"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Web     WebConfig     `mapstructure:"web"`
	Session SessionConfig `mapstructure:"session"`
}

// LogConfig configures the global slog logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

// VoiceConfig configures the remote voice session.
type VoiceConfig struct {
	Provider       string `mapstructure:"provider"` // genai, gemini-ws
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Voice          string `mapstructure:"voice"`
	InputRate      int    `mapstructure:"input_rate"`
	OutputRate     int    `mapstructure:"output_rate"`
	TranscriptMode string `mapstructure:"transcript_mode"` // turn, append
}

// AudioConfig configures capture and playback devices.
type AudioConfig struct {
	Backend        string        `mapstructure:"backend"` // auto, exec, mock, remote
	InputDevice    string        `mapstructure:"input_device"`
	OutputDevice   string        `mapstructure:"output_device"`
	FrameSize      int           `mapstructure:"frame_size"`
	BufferDuration time.Duration `mapstructure:"buffer_duration"`
	PlaybackLead   time.Duration `mapstructure:"playback_lead"`
	SendQueue      int           `mapstructure:"send_queue"`
}

// WebConfig configures the dashboard server.
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// SessionConfig holds the default session options used by `coach run`.
type SessionConfig struct {
	Role       string `mapstructure:"role"`
	Difficulty string `mapstructure:"difficulty"`
	Mode       string `mapstructure:"mode"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Voice: VoiceConfig{
			Provider:       "genai",
			Model:          "gemini-2.0-flash-live-001",
			Voice:          "Puck",
			InputRate:      16000,
			OutputRate:     24000,
			TranscriptMode: "turn",
		},
		Audio: AudioConfig{
			Backend:        "auto",
			FrameSize:      4096,
			BufferDuration: 20 * time.Millisecond,
			PlaybackLead:   50 * time.Millisecond,
			SendQueue:      32,
		},
		Web: WebConfig{Enabled: true, Address: ":8080"},
		Session: SessionConfig{
			Role:       "software_engineer",
			Difficulty: "medium",
			Mode:       "behavioral",
		},
	}
}

// Load reads configuration from path (or ./coach.yaml, ~/.coach/coach.yaml
// when path is empty), then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("coach")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".coach"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if cfg.Voice.APIKey == "" {
		cfg.Voice.APIKey = APIKeyFromEnv()
	}
	return cfg, nil
}

// APIKeyFromEnv returns the first credential found in the environment.
func APIKeyFromEnv() string {
	for _, name := range apiKeyEnv {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("voice.provider", d.Voice.Provider)
	v.SetDefault("voice.api_key", d.Voice.APIKey)
	v.SetDefault("voice.model", d.Voice.Model)
	v.SetDefault("voice.voice", d.Voice.Voice)
	v.SetDefault("voice.input_rate", d.Voice.InputRate)
	v.SetDefault("voice.output_rate", d.Voice.OutputRate)
	v.SetDefault("voice.transcript_mode", d.Voice.TranscriptMode)

	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.input_device", d.Audio.InputDevice)
	v.SetDefault("audio.output_device", d.Audio.OutputDevice)
	v.SetDefault("audio.frame_size", d.Audio.FrameSize)
	v.SetDefault("audio.buffer_duration", d.Audio.BufferDuration)
	v.SetDefault("audio.playback_lead", d.Audio.PlaybackLead)
	v.SetDefault("audio.send_queue", d.Audio.SendQueue)

	v.SetDefault("web.enabled", d.Web.Enabled)
	v.SetDefault("web.address", d.Web.Address)

	v.SetDefault("session.role", d.Session.Role)
	v.SetDefault("session.difficulty", d.Session.Difficulty)
	v.SetDefault("session.mode", d.Session.Mode)
}

// Validate checks the structural parts of the configuration.
// A missing API key is not an error here: it is reported when a session
// is started, before any connection attempt.
func (c *Config) Validate() error {
	switch c.Voice.Provider {
	case "genai", "gemini-ws":
	default:
		return &ConfigError{Field: "voice.provider", Message: "unknown voice provider: " + c.Voice.Provider}
	}
	switch c.Voice.TranscriptMode {
	case "turn", "append":
	default:
		return &ConfigError{Field: "voice.transcript_mode", Message: "transcript_mode must be turn or append"}
	}
	if c.Voice.InputRate <= 0 || c.Voice.OutputRate <= 0 {
		return &ConfigError{Field: "voice.input_rate", Message: "sample rates must be positive"}
	}
	switch c.Audio.Backend {
	case "auto", "exec", "mock", "remote":
	default:
		return &ConfigError{Field: "audio.backend", Message: "unknown audio backend: " + c.Audio.Backend}
	}
	if c.Audio.FrameSize <= 0 {
		return &ConfigError{Field: "audio.frame_size", Message: "frame_size must be positive"}
	}
	if c.Audio.BufferDuration <= 0 {
		return &ConfigError{Field: "audio.buffer_duration", Message: "buffer_duration must be positive"}
	}
	if c.Audio.Backend == "remote" && !c.Web.Enabled {
		return &ConfigError{Field: "audio.backend", Message: "remote audio backend needs the web server enabled"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}
