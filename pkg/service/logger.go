package service

import (
	"log/slog"
	"os"

	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/variables"
	"go.uber.org/fx"
)

var loggerWriter = os.Stdout

func logLevel() slog.Level {
	switch variables.Env(variables.LOG_LEVEL_NAME, variables.LOG_LEVEL_DEFAULT) {
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(loggerWriter, &slog.HandlerOptions{
		AddSource: false,
		Level:     logLevel(),
	}))
}

var LoggerModule = fx.Module("logger", fx.Provide(
	logger,
))
