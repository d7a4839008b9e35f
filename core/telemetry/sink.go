package telemetry

import (
	"context"
	"log/slog"
)

// Sink receives events from certificate management stages. Emit is
// fire-and-forget: implementations must not block the caller and must not
// return errors into the operation being described.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) {}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging every event at info level (warn for
// failures). If logger is nil, slog.Default() is used.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if event.Outcome == OutcomeFailure {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "certificate event",
		slog.String("component", event.Component),
		slog.String("stage", event.Stage),
		slog.String("outcome", string(event.Outcome)),
		slog.Duration("duration", event.Duration),
		slog.Any("metadata", event.Metadata),
	)
}

// ChannelSink forwards events to a buffered channel for an external
// collector. When the buffer is full, events are dropped instead of
// blocking the emitting operation.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(_ context.Context, event Event) {
	select {
	case s.events <- event:
	default:
		// collector is behind; dropping is preferable to blocking issuance
	}
}

// Events returns the channel the collector should drain.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}
