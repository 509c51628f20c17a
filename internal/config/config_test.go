package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default configuration is invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "relative backend url",
			mutate:      func(c *Config) { c.Backend.BaseURL = "localhost:7000" },
			expectError: true,
			errorMsg:    "base_url must be an absolute http(s) URL",
		},
		{
			name:        "no upload slots",
			mutate:      func(c *Config) { c.Backend.MaxConcurrentUploads = 0 },
			expectError: true,
			errorMsg:    "max_concurrent_uploads must be at least 1",
		},
		{
			name:        "unsupported bit depth",
			mutate:      func(c *Config) { c.Audio.BitDepth = 24 },
			expectError: true,
			errorMsg:    "bit_depth must be 16",
		},
		{
			name:        "zero chunk duration",
			mutate:      func(c *Config) { c.Audio.ChunkDuration = 0 },
			expectError: true,
			errorMsg:    "chunk_duration must be at least 1 second",
		},
		{
			name:        "args without binary",
			mutate:      func(c *Config) { c.Recorder.Args = []string{"-q"} },
			expectError: true,
			errorMsg:    "args require an explicit binary",
		},
		{
			name:        "unknown recorder output",
			mutate:      func(c *Config) { c.Recorder.OutputFormat = "flac" },
			expectError: true,
			errorMsg:    "output_format must be 'raw' or 'wav'",
		},
		{
			name:        "empty temp root",
			mutate:      func(c *Config) { c.Storage.TempRoot = "" },
			expectError: true,
			errorMsg:    "temp_root cannot be empty",
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name: "disabled http skips port check",
			mutate: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Port = 0
			},
			expectError: false,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "partial file keeps defaults",
			configYAML: `
backend:
  base_url: "https://notera.example.com"
audio:
  sample_rate: 16000
  flush_partial_chunk: true
recorder:
  device: "hw:1,0"
`,
			check: func(t *testing.T, c *Config) {
				if c.Backend.BaseURL != "https://notera.example.com" {
					t.Errorf("Expected base_url from file, got %s", c.Backend.BaseURL)
				}
				if c.Audio.SampleRate != 16000 {
					t.Errorf("Expected sample_rate 16000, got %d", c.Audio.SampleRate)
				}
				if !c.Audio.FlushPartialChunk {
					t.Error("Expected flush_partial_chunk true")
				}
				if c.Audio.ChunkDuration != 5 {
					t.Errorf("Expected default chunk_duration 5, got %d", c.Audio.ChunkDuration)
				}
				if c.Recorder.Device != "hw:1,0" {
					t.Errorf("Expected device hw:1,0, got %s", c.Recorder.Device)
				}
				if c.Storage.TempRoot != "./temp_recording_chunks" {
					t.Errorf("Expected default temp_root, got %s", c.Storage.TempRoot)
				}
			},
		},
		{
			name: "custom recorder command",
			configYAML: `
recorder:
  binary: "parec"
  args: ["--format=s16le", "--rate=44100", "--channels=1"]
`,
			check: func(t *testing.T, c *Config) {
				if c.Recorder.Binary != "parec" || len(c.Recorder.Args) != 3 {
					t.Errorf("Unexpected recorder config: %+v", c.Recorder)
				}
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
audio:
  sample_rate: invalid_number
`,
			expectError: true,
		},
		{
			name: "fails validation",
			configYAML: `
logging:
  format: "xml"
`,
			expectError: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config"+string(rune('a'+i))+".yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write test config file: %v", err)
			}

			config, err := Load(configPath)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			tt.check(t, config)
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("NOTERA_BACKEND_BASE_URL", "http://10.0.0.5:7000")
	t.Setenv("NOTERA_BACKEND_API_KEY", "secret")
	t.Setenv("NOTERA_AUDIO_CHUNK_DURATION", "10")
	t.Setenv("NOTERA_HTTP_PORT", "9090")
	t.Setenv("NOTERA_LOGGING_LEVEL", "debug")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Backend.BaseURL != "http://10.0.0.5:7000" {
		t.Errorf("Expected base_url from env, got %s", config.Backend.BaseURL)
	}
	if config.Backend.APIKey != "secret" {
		t.Errorf("Expected api key from env, got %q", config.Backend.APIKey)
	}
	if config.Audio.ChunkDuration != 10 {
		t.Errorf("Expected chunk_duration 10, got %d", config.Audio.ChunkDuration)
	}
	if config.HTTP.Port != 9090 {
		t.Errorf("Expected http port 9090, got %d", config.HTTP.Port)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", config.Logging.Level)
	}

	if got := config.Sanitized().Backend.APIKey; got != "***" {
		t.Errorf("Expected sanitized api key, got %q", got)
	}
	if config.Backend.APIKey != "secret" {
		t.Error("Sanitized modified the original configuration")
	}
}

func TestDurationHelpers(t *testing.T) {
	config := Default()

	if got := config.Backend.GetTimeoutDuration(); got != 60*time.Second {
		t.Errorf("Expected 60s backend timeout, got %v", got)
	}
	if got := config.Audio.GetChunkDuration(); got != 5*time.Second {
		t.Errorf("Expected 5s chunk duration, got %v", got)
	}
	if got := config.Recorder.GetStopTimeoutDuration(); got != 3*time.Second {
		t.Errorf("Expected 3s stop timeout, got %v", got)
	}
	if got := config.Shutdown.GetDrainTimeoutDuration(); got != 10*time.Second {
		t.Errorf("Expected 10s drain timeout, got %v", got)
	}
	if got := config.HTTP.ListenAddress(); got != "127.0.0.1:7071" {
		t.Errorf("Expected 127.0.0.1:7071, got %s", got)
	}
}
