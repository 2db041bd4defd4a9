package logger

import (
	"log/slog"
	"os"

	"checkin-keeper/internal/config"
)

var Logger *slog.Logger

// levelVar backs the handler level so the running process can change
// verbosity without a restart.
var levelVar = new(slog.LevelVar)

// InitLogger initializes structured logging based on configuration
func InitLogger(cfg *config.Config) {
	if cfg.GinMode == "debug" {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.GinMode == "debug", // Only add source in debug mode
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	Logger = slog.New(handler)

	Logger.Info("Structured logging initialized", "level", levelVar.Level().String())
}

// SetLevel changes the log level of the running process.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// Level reports the current log level.
func Level() slog.Level {
	return levelVar.Level()
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
