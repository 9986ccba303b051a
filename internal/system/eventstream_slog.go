package system

import (
	"context"
	"log/slog"

	"github.com/babyman/fraktor/internal/pathreg"
)

// eventStreamSlogHandler bridges log/slog into the event stream's Log
// variant, so every subsystem's structured slog output ends up observable
// by event-stream subscribers too.
type eventStreamSlogHandler struct {
	stream *EventStream
	origin pathreg.Pid
	clock  *Clock
	attrs  []slog.Attr
	group  string
}

func (h *eventStreamSlogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *eventStreamSlogHandler) Handle(_ context.Context, record slog.Record) error {
	msg := record.Message
	h.stream.Publish(Event{
		Kind: EventLog,
		Log: &LogEntry{
			Level:     record.Level,
			Message:   msg,
			Timestamp: h.clock.Now(),
			OriginPid: h.origin,
		},
	})
	return nil
}

func (h *eventStreamSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *eventStreamSlogHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.group = name
	return &clone
}
