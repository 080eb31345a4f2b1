package logger

import (
	"log/slog"
	"os"
	"strings"
)

func Initialize(level slog.Level) {
	InitializeWithFormat(level, "json")
}

// InitializeWithFormat installs the default logger. format is "json" or "text".
func InitializeWithFormat(level slog.Level, format string) {
	options := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, options)
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, options)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func Named(name string) *slog.Logger {
	logger := slog.Default()
	if logger == nil {
		return nil
	}

	return logger.With("name", name)
}
