// Package logger configures zerolog for the km binary.
//
// Two sinks are supported: a log file that records everything at the
// configured level, and a console sink on stderr that only shows warnings
// and errors by default so command output on stdout stays machine readable.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level        string    // file level: trace, debug, info, warn, error, disabled
	File         string    // log file path, empty disables the file sink
	Console      bool      // enable console output
	ConsoleLevel string    // console level, defaults to warn
	Pretty       bool      // human readable console output
	Out          io.Writer // console destination, defaults to os.Stderr
}

// Logger wraps a zerolog.Logger together with the file it writes to.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New creates a logger from cfg.
func New(cfg Config) (*Logger, error) {
	fileLevel := parseLevel(cfg.Level, zerolog.InfoLevel)
	consoleLevel := parseLevel(cfg.ConsoleLevel, zerolog.WarnLevel)

	var writers []io.Writer
	minLevel := zerolog.Disabled

	if cfg.Console && consoleLevel != zerolog.Disabled {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		if cfg.Pretty {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
		}
		writers = append(writers, levelFilter{w: out, min: consoleLevel})
		minLevel = consoleLevel
	}

	var file *os.File
	if cfg.File != "" && fileLevel != zerolog.Disabled {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		// Plain key=value lines keep the file greppable.
		fileWriter := zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}
		writers = append(writers, levelFilter{w: fileWriter, min: fileLevel})
		if fileLevel < minLevel {
			minLevel = fileLevel
		}
	}

	if len(writers) == 0 {
		return &Logger{Logger: zerolog.Nop()}, nil
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(minLevel).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: zl, file: file}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// LevelForVerbosity maps the CLI verbosity names onto zerolog levels.
func LevelForVerbosity(verbosity string) string {
	switch strings.ToLower(verbosity) {
	case "silent":
		return zerolog.Disabled.String()
	case "quiet":
		return zerolog.ErrorLevel.String()
	case "verbose":
		return zerolog.DebugLevel.String()
	case "debug":
		return zerolog.TraceLevel.String()
	default:
		return zerolog.InfoLevel.String()
	}
}

func parseLevel(s string, fallback zerolog.Level) zerolog.Level {
	if s == "" {
		return fallback
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return fallback
	}
	return level
}

// levelFilter drops events below min for a single sink.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
