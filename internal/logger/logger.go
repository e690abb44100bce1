package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	// Logger is the global slog logger instance
	Logger *slog.Logger
)

// Init initializes the global logger with the level from the LOG_LEVEL
// environment variable. Default level is INFO.
func Init() {
	Setup(os.Getenv("LOG_LEVEL"), os.Stdout)
}

// Setup installs a JSON logger writing to w at the named level
func Setup(levelName string, w io.Writer) {
	if levelName == "" {
		levelName = "info"
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(levelName),
	})

	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	Logger.Info("Logger initialized", "level", levelName)
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

func get() *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger
}

// With returns a component logger carrying the given attributes
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}
