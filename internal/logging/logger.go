// Package logging builds the slog loggers used by fixtures and the CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/syntrixbase/mongofixture/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the fixture log file written under LoggingConfig.Dir.
const LogFileName = "mongofixture.log"

var (
	// shared log files, keyed by path, so fixtures created in one test
	// binary append to the same rotated file
	logFiles   = map[string]*lumberjack.Logger{}
	logFilesMu sync.Mutex
)

// NewLogger creates a logger from the given configuration. It never returns
// nil: with every sink disabled the logger discards.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers, createHandler(os.Stderr, cfg.Format, ParseLevel(pick(cfg.Console.Level, cfg.Level))))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file := sharedFile(filepath.Join(cfg.Dir, LogFileName), cfg.Rotation)
		handlers = append(handlers, createHandler(file, cfg.Format, ParseLevel(pick(cfg.File.Level, cfg.Level))))
	}

	switch len(handlers) {
	case 0:
		return Discard(), nil
	case 1:
		return slog.New(handlers[0]), nil
	default:
		return slog.New(NewFanout(handlers...)), nil
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// NewRotatingWriter opens a rotated log file owned by the caller, who must
// Close it.
func NewRotatingWriter(dir, name string, rot config.RotationConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return newRotating(filepath.Join(dir, name), rot), nil
}

// Shutdown closes the shared log files.
func Shutdown() error {
	logFilesMu.Lock()
	defer logFilesMu.Unlock()

	var firstErr error
	for path, f := range logFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close log file %s: %w", path, err)
		}
		delete(logFiles, path)
	}
	return firstErr
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func sharedFile(path string, rot config.RotationConfig) *lumberjack.Logger {
	logFilesMu.Lock()
	defer logFilesMu.Unlock()

	if f, ok := logFiles[path]; ok {
		return f
	}
	f := newRotating(path, rot)
	logFiles[path] = f
	return f
}

func newRotating(path string, rot config.RotationConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSize,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAge,
		Compress:   rot.Compress,
	}
}

func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
