package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/httplog/v3"
)

const (
	AppName = "klg-notify"
	Version = "v1.0.0"
)

// New builds the process logger. Production logs are JSON in the ECS
// schema at the configured level; every other environment logs text at
// debug so connection churn stays visible.
func New(env, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, env, level)
}

func NewWithWriter(w io.Writer, env, level string) *slog.Logger {
	var handler slog.Handler
	if IsProduction(env) {
		logFormat := httplog.SchemaECS.Concise(false)
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       ParseLevel(level),
			ReplaceAttr: logFormat.ReplaceAttr,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	return slog.New(handler).With(
		slog.String("app", AppName),
		slog.String("version", Version),
		slog.String("env", env),
	)
}

func IsProduction(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "production" || env == "prod"
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
