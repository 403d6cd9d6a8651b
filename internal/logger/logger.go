package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger owns the process logger and the files behind it
type Logger struct {
	logger   zerolog.Logger
	closer   io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level      string `mapstructure:"level"`   // debug, info, warn, error
	File       string `mapstructure:"file"`    // log file path
	Console    bool   `mapstructure:"console"` // log to stderr
	Pretty     bool   `mapstructure:"pretty"`  // human readable console output
	Redaction  bool   `mapstructure:"redaction"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // rotate the file past this size, 0 disables
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`

	// Patterns are extra regular expressions to redact.
	Patterns []string `mapstructure:"patterns"`
	// Secrets are redacted verbatim in addition to the built-in patterns.
	Secrets []string `mapstructure:"-"`
	// Output replaces the console writer. Used by tests.
	Output io.Writer `mapstructure:"-"`
}

// New creates a logger and installs it as the zerolog global logger
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console || cfg.Output != nil {
		var console io.Writer = os.Stderr
		if cfg.Output != nil {
			console = cfg.Output
		}
		if cfg.Pretty {
			console = zerolog.ConsoleWriter{
				Out:        console,
				TimeFormat: time.RFC3339,
			}
		}
		writers = append(writers, console)
	}

	var closer io.Closer
	if cfg.File != "" {
		file, err := NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closer = file
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor(cfg.Secrets...)
		for _, pattern := range cfg.Patterns {
			if err := redactor.AddPattern(pattern); err != nil {
				if closer != nil {
					_ = closer.Close()
				}
				return nil, fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
		writer = redactor.Wrap(writer)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{
		logger:   logger,
		closer:   closer,
		redactor: redactor,
	}, nil
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Console:    true,
		Pretty:     true,
		Redaction:  true,
		MaxSizeMB:  50,
		MaxBackups: 3,
		Compress:   true,
	}
}
