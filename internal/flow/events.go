package flow

import (
	"context"
	"log/slog"
	"time"
)

// EventKind names a router observability event.
type EventKind string

const (
	EventStaleCapture   EventKind = "ignored_stale_capture"
	EventConsentBlocked EventKind = "consent_blocked"
	EventNoMatch        EventKind = "no_match"
	EventFlowError      EventKind = "flow_error"
)

// Event is emitted by the router for turns that did not run a flow normally.
type Event struct {
	Kind   EventKind
	Phone  string
	Flow   string
	Input  string
	Detail string
	At     time.Time
}

// EventSink receives router events.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// LogSink writes events to slog.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, e Event) {
	level := slog.LevelInfo
	if e.Kind == EventFlowError {
		level = slog.LevelError
	}
	slog.Log(context.Background(), level, "Router event", "kind", e.Kind, "phone", e.Phone, "flow", e.Flow,
		"input", e.Input, "detail", e.Detail)
}
