package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

const levelFatal = slog.LevelError + 4

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewJSONHandler(os.Stdout, handlerOptions(slog.LevelInfo))))
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= levelFatal {
					a.Value = slog.StringValue("FATAL")
				}
			}
			return a
		},
	}
}

// Init configures JSON-line output on stdout at the given level
// ("debug", "info", "warn", "error"; anything else means info).
func Init(level string) {
	lvl := parseLevel(level)
	current.Store(slog.New(slog.NewJSONHandler(os.Stdout, handlerOptions(lvl))))
	Info("logger initialized", map[string]any{"level": lvl.String()})
}

// Use swaps the underlying logger. Tests use it to capture output.
func Use(l *slog.Logger) {
	if l != nil {
		current.Store(l)
	}
}

func Debug(msg string, fields map[string]any) {
	emit(slog.LevelDebug, msg, fields)
}

func Info(msg string, fields map[string]any) {
	emit(slog.LevelInfo, msg, fields)
}

func Warn(msg string, fields map[string]any) {
	emit(slog.LevelWarn, msg, fields)
}

func Error(msg string, fields map[string]any) {
	emit(slog.LevelError, msg, fields)
}

func Fatal(msg string, fields map[string]any) {
	emit(levelFatal, msg, fields)
	os.Exit(1)
}

func emit(level slog.Level, msg string, fields map[string]any) {
	l := current.Load()
	if !l.Enabled(context.Background(), level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.LogAttrs(context.Background(), level, msg, slog.Attr{
		Key:   "fields",
		Value: slog.GroupValue(attrs...),
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
