package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/jimbolo/convtrack/pkg/models"
)

var globalLogger atomic.Pointer[slog.Logger]

// Init initializes the global logger based on application settings.
// Output goes to w, or os.Stdout when w is nil. The Debug setting overrides
// LogLevel so diagnostic messages are emitted.
func Init(settings models.ApplicationSettings, w io.Writer) error {
	level, err := parseLevel(settings.LogLevel)
	if err != nil {
		return err
	}
	if settings.Debug {
		level = slog.LevelDebug
	}
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(settings.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format specified: %q (must be text or json)", settings.LogFormat)
	}

	l := slog.New(handler).With("component", "convtrack")
	globalLogger.Store(l)
	slog.SetDefault(l)
	l.Debug("Logger initialized", "level", level.String(), "format", settings.LogFormat)
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level specified: %q (must be debug, info, warn, or error)", name)
	}
}

// L returns the initialized global logger instance, falling back to the
// slog default if Init has not been called.
func L() *slog.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
