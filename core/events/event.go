package events

import (
	"log/slog"

	"offergate/core/types"
)

// Event represents a structured state change emitted by a campaign module.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the HTTP API,
// indexers, log sinks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wired into modules until a real emitter is configured.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// LogEmitter writes every event to a structured logger, flattening attribute
// maps when the event provides them.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates an emitter writing to log. A nil logger uses the
// process default.
func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

// Emit implements the Emitter interface.
func (l *LogEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if typed, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := typed.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	l.log.Info("Campaign event", attrs...)
}
