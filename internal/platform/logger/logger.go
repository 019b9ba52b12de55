// Package logger holds the process-wide structured logger. Both binaries log
// JSON to stdout so the collector side stays uniform.
package logger

import (
	"log/slog"
	"os"
)

var (
	level         = new(slog.LevelVar)
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
)

func L() *slog.Logger {
	return defaultLogger
}

func SetLevel(l slog.Level) {
	level.Set(l)
}

func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}
