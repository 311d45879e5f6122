package reporting

import (
	"context"
	"log/slog"

	"github.com/Amund211/warmstart/internal/logging"
	"github.com/getsentry/sentry-go"
)

type reportingEventLog struct {
	base logging.EventLog
}

// Wrap an event log so warnings and errors are also sent to Sentry
func NewReportingEventLog(base logging.EventLog) logging.EventLog {
	return &reportingEventLog{base: base}
}

func (l *reportingEventLog) WriteInformation(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.base.WriteInformation(ctx, msg, attrs...)
}

func (l *reportingEventLog) WriteWarning(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.base.WriteWarning(ctx, msg, attrs...)
	capture(ctx, sentry.LevelWarning, msg, attrs)
}

func (l *reportingEventLog) WriteError(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.base.WriteError(ctx, msg, attrs...)
	capture(ctx, sentry.LevelError, msg, attrs)
}

func capture(ctx context.Context, level sentry.Level, msg string, attrs []slog.Attr) {
	hub := hubFromContext(ctx)
	if hub == nil || hub.Client() == nil {
		return
	}

	extras := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		extras[attr.Key] = attr.Value.String()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		applyMeta(ctx, scope, []map[string]string{extras})
		scope.SetLevel(level)
		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(msg)})
		hub.CaptureMessage(msg)
	})
}
