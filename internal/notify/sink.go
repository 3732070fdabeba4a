package notify

import (
	"context"
	"log/slog"

	"github.com/utafrali/cartstore/internal/domain"
)

// Sink receives user-facing notifications. Notify must not block for long
// and has no acknowledgment.
type Sink interface {
	Notify(ctx context.Context, n domain.Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n domain.Notification)

func (f SinkFunc) Notify(ctx context.Context, n domain.Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(context.Context, domain.Notification) {})

// LogSink writes notifications to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs at debug level for success and warn for warnings.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, n domain.Notification) {
	level := slog.LevelDebug
	if n.Kind == domain.NotificationWarning {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "cart notification",
		slog.String("kind", string(n.Kind)),
		slog.String("message", n.Message),
		slog.Int("duration_ms", n.DurationMs),
	)
}

// Multi fans a notification out to every sink in order.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n domain.Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}
