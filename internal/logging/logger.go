package logging

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/harsh-dexter/notera/internal/config"
)

// New creates a logger from the logging section of the configuration.
// The returned closer releases the log file, if one was opened.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	out, closer := output(cfg)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    closer != nil,
		}
	}

	logger := zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return logger, closer
}

// ParseLevel maps a configured level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func output(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	switch cfg.Output {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	default:
		// Anything else is a file path, rotated by size.
		rotator := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		return rotator, rotator
	}
}

// Nop returns a disabled logger for tests and optional components
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithCorrelationID scopes a logger with a correlation ID, generating one if empty
func WithCorrelationID(logger zerolog.Logger, correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return logger.With().Str("correlation_id", correlationID).Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
