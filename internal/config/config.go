package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. NOTERA_BACKEND_BASE_URL.
const EnvPrefix = "NOTERA"

// DefaultPath is read when no config file is named explicitly and it exists.
const DefaultPath = "notera.yaml"

// Config represents the complete capture host configuration
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Audio    AudioConfig    `yaml:"audio"`
	Recorder RecorderConfig `yaml:"recorder"`
	Storage  StorageConfig  `yaml:"storage"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// BackendConfig points at the notera backend that receives chunks
type BackendConfig struct {
	BaseURL              string `yaml:"base_url" split_words:"true"`
	APIKey               string `yaml:"api_key" split_words:"true"`
	Timeout              int    `yaml:"timeout"` // seconds
	MaxConcurrentUploads int    `yaml:"max_concurrent_uploads" split_words:"true"`
}

// AudioConfig contains the capture format and chunking parameters
type AudioConfig struct {
	SampleRate        int  `yaml:"sample_rate" split_words:"true"`
	Channels          int  `yaml:"channels"`
	BitDepth          int  `yaml:"bit_depth" split_words:"true"`
	ChunkDuration     int  `yaml:"chunk_duration" split_words:"true"` // seconds
	FlushPartialChunk bool `yaml:"flush_partial_chunk" split_words:"true"`
}

// RecorderConfig selects the external recorder process. An empty Binary
// picks the platform default (arecord, ffmpeg or sox).
type RecorderConfig struct {
	Binary       string   `yaml:"binary"`
	Args         []string `yaml:"args"`
	Device       string   `yaml:"device"`
	OutputFormat string   `yaml:"output_format" split_words:"true"` // raw or wav
	StopTimeout  int      `yaml:"stop_timeout" split_words:"true"`  // seconds
}

// StorageConfig contains local filesystem locations
type StorageConfig struct {
	TempRoot   string `yaml:"temp_root" split_words:"true"`
	LedgerPath string `yaml:"ledger_path" split_words:"true"` // empty disables the ledger
}

// HTTPConfig contains the local control API configuration
type HTTPConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Address        string   `yaml:"address"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" split_words:"true"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb" split_words:"true"`
	MaxBackups int    `yaml:"max_backups" split_words:"true"`
	MaxAgeDays int    `yaml:"max_age_days" split_words:"true"`
}

// ShutdownConfig bounds how long the host waits for in-flight uploads
type ShutdownConfig struct {
	DrainTimeout int `yaml:"drain_timeout" split_words:"true"` // seconds
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:              "http://localhost:7000",
			Timeout:              60,
			MaxConcurrentUploads: 4,
		},
		Audio: AudioConfig{
			SampleRate:    44100,
			Channels:      1,
			BitDepth:      16,
			ChunkDuration: 5,
		},
		Recorder: RecorderConfig{
			OutputFormat: "raw",
			StopTimeout:  3,
		},
		Storage: StorageConfig{
			TempRoot:   "./temp_recording_chunks",
			LedgerPath: "./temp_recording_chunks/ledger.db",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    7071,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Shutdown: ShutdownConfig{
			DrainTimeout: 10,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if path
// is not empty), a .env file in the working directory and NOTERA_* variables,
// in that order, and validates the result.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ResolvePath returns explicit if set, DefaultPath if that file exists, or "".
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

func applyEnv(config *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if c.Shutdown.DrainTimeout < 0 {
		return fmt.Errorf("shutdown config: drain_timeout cannot be negative, got %d", c.Shutdown.DrainTimeout)
	}

	return nil
}

// Validate validates backend configuration
func (b *BackendConfig) Validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	u, err := url.Parse(b.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got '%s'", b.BaseURL)
	}

	if b.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", b.Timeout)
	}

	if b.MaxConcurrentUploads < 1 {
		return fmt.Errorf("max_concurrent_uploads must be at least 1, got %d", b.MaxConcurrentUploads)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.ChunkDuration < 1 {
		return fmt.Errorf("chunk_duration must be at least 1 second, got %d", a.ChunkDuration)
	}

	return nil
}

// Validate validates recorder configuration
func (r *RecorderConfig) Validate() error {
	if len(r.Args) > 0 && r.Binary == "" {
		return fmt.Errorf("args require an explicit binary")
	}

	validFormats := map[string]bool{"raw": true, "wav": true}
	if !validFormats[r.OutputFormat] {
		return fmt.Errorf("output_format must be 'raw' or 'wav', got '%s'", r.OutputFormat)
	}

	if r.StopTimeout < 0 {
		return fmt.Errorf("stop_timeout cannot be negative, got %d", r.StopTimeout)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.TempRoot == "" {
		return fmt.Errorf("temp_root cannot be empty")
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'console', got '%s'", l.Format)
	}

	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits cannot be negative")
	}

	return nil
}

// GetTimeoutDuration returns the backend request timeout as a time.Duration
func (b *BackendConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// GetChunkDuration returns the chunk window as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration) * time.Second
}

// GetStopTimeoutDuration returns the grace period before the recorder is killed
func (r *RecorderConfig) GetStopTimeoutDuration() time.Duration {
	return time.Duration(r.StopTimeout) * time.Second
}

// GetDrainTimeoutDuration returns how long shutdown waits for background tasks
func (s *ShutdownConfig) GetDrainTimeoutDuration() time.Duration {
	return time.Duration(s.DrainTimeout) * time.Second
}

// ListenAddress returns the host:port the control API listens on
func (h *HTTPConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// Sanitized returns a copy safe to expose over the control API
func (c *Config) Sanitized() Config {
	out := *c
	if out.Backend.APIKey != "" {
		out.Backend.APIKey = "***"
	}
	return out
}
