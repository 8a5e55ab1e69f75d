package state

import (
	"log/slog"

	"escrowd/core/events"
	"escrowd/core/types"
)

type wireEvent interface {
	Event() *types.Event
}

// LogEmitter appends every emitted event that carries a wire form to the
// manager's persistent event log. Append failures are logged and dropped;
// emission must never abort the transition that produced the event.
type LogEmitter struct {
	manager *Manager
	logger  *slog.Logger
	next    events.Emitter
}

// NewLogEmitter wires an emitter over the manager. The optional next emitter
// receives every event after it is persisted.
func NewLogEmitter(manager *Manager, logger *slog.Logger, next events.Emitter) *LogEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &LogEmitter{manager: manager, logger: logger, next: next}
}

// Emit implements events.Emitter.
func (e *LogEmitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	if carrier, ok := evt.(wireEvent); ok && e.manager != nil {
		if wire := carrier.Event(); wire != nil {
			if _, err := e.manager.EventAppend(wire); err != nil && e.logger != nil {
				e.logger.Error("event append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
			}
		}
	}
	e.next.Emit(evt)
}
