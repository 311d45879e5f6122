package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
)

// EventLog receives the process-level events of the bootstrap phase
type EventLog interface {
	WriteInformation(ctx context.Context, msg string, attrs ...slog.Attr)
	WriteWarning(ctx context.Context, msg string, attrs ...slog.Attr)
	WriteError(ctx context.Context, msg string, attrs ...slog.Attr)
}

type slogEventLog struct {
	logger *slog.Logger
}

// Write events as log records tagged with the name and id of the current process
func NewEventLog(logger *slog.Logger) EventLog {
	return &slogEventLog{
		logger: logger.With(slog.Group("process",
			slog.String("name", processName()),
			slog.Int("pid", os.Getpid()),
		)),
	}
}

func (l *slogEventLog) WriteInformation(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (l *slogEventLog) WriteWarning(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}

func (l *slogEventLog) WriteError(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func processName() string {
	executable, err := os.Executable()
	if err != nil {
		return filepath.Base(os.Args[0])
	}
	return filepath.Base(executable)
}
