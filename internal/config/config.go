package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for the medscribe service.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Logging    LoggingConfig    `toml:"logging"`
	AssemblyAI AssemblyAIConfig `toml:"assemblyai"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Audio      AudioConfig      `toml:"audio"`
	Session    SessionConfig    `toml:"session"`
	Storage    StorageConfig    `toml:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	ReadTimeoutSec     int      `toml:"read_timeout_sec"`
	WriteTimeoutSec    int      `toml:"write_timeout_sec"`
	ShutdownTimeoutSec int      `toml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AssemblyAIConfig holds streaming transcription settings.
type AssemblyAIConfig struct {
	APIKey                string  `toml:"api_key"`
	BaseURL               string  `toml:"base_url"`
	TokenURL              string  `toml:"token_url"`
	SampleRate            int     `toml:"sample_rate"`
	Encoding              string  `toml:"encoding"`
	FormatTurns           bool    `toml:"format_turns"`
	EndOfTurnConfidence   float64 `toml:"end_of_turn_confidence"`
	MinEndOfTurnSilenceMs int     `toml:"min_end_of_turn_silence_ms"`
	MaxTurnSilenceMs      int     `toml:"max_turn_silence_ms"`
	TokenExpirySec        int     `toml:"token_expiry_sec"`
	DialTimeoutSec        int     `toml:"dial_timeout_sec"`
	HTTPTimeoutSec        int     `toml:"http_timeout_sec"`
}

// OpenAIConfig holds post-session enrichment settings.
type OpenAIConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	TimeoutSec  int     `toml:"timeout_sec"`
	MaxRetries  int     `toml:"max_retries"`
}

// AudioConfig holds the PCM pipeline settings.
type AudioConfig struct {
	TargetSampleRate int `toml:"target_sample_rate"`
	ChunkSamples     int `toml:"chunk_samples"`
	QueueCapacity    int `toml:"queue_capacity"`
	PollIntervalMs   int `toml:"poll_interval_ms"`
}

// SessionConfig holds recording session lifecycle settings.
type SessionConfig struct {
	DefaultSpecialty  string `toml:"default_specialty"`
	TerminationWaitMs int    `toml:"termination_wait_ms"`
	CloseTimeoutMs    int    `toml:"close_timeout_ms"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}

// Default returns a configuration with sane defaults for every field.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			CORSAllowedOrigins: []string{"*"},
			ReadTimeoutSec:     30,
			WriteTimeoutSec:    30,
			ShutdownTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		AssemblyAI: AssemblyAIConfig{
			BaseURL:               "wss://streaming.assemblyai.com/v3/ws",
			TokenURL:              "https://streaming.assemblyai.com/v3/token",
			SampleRate:            16000,
			Encoding:              "pcm_s16le",
			FormatTurns:           true,
			EndOfTurnConfidence:   0.7,
			MinEndOfTurnSilenceMs: 800,
			MaxTurnSilenceMs:      3600,
			TokenExpirySec:        480,
			DialTimeoutSec:        10,
			HTTPTimeoutSec:        10,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4.1-nano-2025-04-14",
			MaxTokens:   4000,
			Temperature: 0.1,
			TimeoutSec:  60,
			MaxRetries:  2,
		},
		Audio: AudioConfig{
			TargetSampleRate: 16000,
			ChunkSamples:     800,
			QueueCapacity:    500,
			PollIntervalMs:   100,
		},
		Session: SessionConfig{
			DefaultSpecialty:  "General Practice",
			TerminationWaitMs: 2000,
			CloseTimeoutMs:    5000,
		},
		Storage: StorageConfig{
			SQLitePath: "medscribe.db",
		},
	}
}

// Load reads the TOML file at path over the defaults, applies environment
// overrides for secrets, and validates the result. An empty path loads
// defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	// API keys come from the environment when present, matching .env
	// based deployments.
	if v := os.Getenv("ASSEMBLYAI_API_KEY"); v != "" {
		cfg.AssemblyAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging: unsupported format %q", c.Logging.Format)
	}
	if err := c.AssemblyAI.validate(); err != nil {
		return fmt.Errorf("assemblyai: %w", err)
	}
	if err := c.OpenAI.validate(); err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	if err := c.Audio.validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if c.Audio.TargetSampleRate != c.AssemblyAI.SampleRate {
		return fmt.Errorf("audio: target_sample_rate %d must match assemblyai sample_rate %d",
			c.Audio.TargetSampleRate, c.AssemblyAI.SampleRate)
	}
	if c.Session.TerminationWaitMs <= 0 {
		return fmt.Errorf("session: termination_wait_ms must be positive")
	}
	if c.Session.CloseTimeoutMs <= 0 {
		return fmt.Errorf("session: close_timeout_ms must be positive")
	}
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage: sqlite_path must not be empty")
	}
	return nil
}

func (c *AssemblyAIConfig) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("token_url must not be empty")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Encoding == "" {
		return fmt.Errorf("encoding must not be empty")
	}
	if c.EndOfTurnConfidence < 0 || c.EndOfTurnConfidence > 1 {
		return fmt.Errorf("end_of_turn_confidence must be in [0,1], got %f", c.EndOfTurnConfidence)
	}
	if c.TokenExpirySec <= 0 {
		return fmt.Errorf("token_expiry_sec must be positive")
	}
	return nil
}

func (c *OpenAIConfig) validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2], got %f", c.Temperature)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

func (c *AudioConfig) validate() error {
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("target_sample_rate must be positive, got %d", c.TargetSampleRate)
	}
	if c.ChunkSamples <= 0 {
		return fmt.Errorf("chunk_samples must be positive, got %d", c.ChunkSamples)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMs)
	}
	return nil
}

// PollInterval returns the queue poll timeout as a duration.
func (c *AudioConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// TerminationWait returns how long Close waits for the collaborator's
// termination event before tearing the socket down.
func (c *SessionConfig) TerminationWait() time.Duration {
	return time.Duration(c.TerminationWaitMs) * time.Millisecond
}

// CloseTimeout returns the bound on joining session lanes at close.
func (c *SessionConfig) CloseTimeout() time.Duration {
	return time.Duration(c.CloseTimeoutMs) * time.Millisecond
}

// TokenExpiry returns the lifetime requested for browser streaming tokens.
func (c *AssemblyAIConfig) TokenExpiry() time.Duration {
	return time.Duration(c.TokenExpirySec) * time.Second
}

// DialTimeout returns the WebSocket dial timeout.
func (c *AssemblyAIConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSec) * time.Second
}

// HTTPTimeout returns the timeout for token endpoint requests.
func (c *AssemblyAIConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// Timeout returns the per-request timeout for enrichment calls.
func (c *OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
