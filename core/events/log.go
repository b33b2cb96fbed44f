package events

import (
	"log/slog"
	"sort"

	"slotmap/core/types"
)

// LogEmitter writes every event to a logger at info level.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (e LogEmitter) Emit(evt Event) {
	if e.Logger == nil || evt == nil {
		return
	}
	payload := Payload(evt)
	keys := make([]string, 0, len(payload.Attributes))
	for k := range payload.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, 2+2*len(keys))
	args = append(args, "type", payload.Type)
	for _, k := range keys {
		args = append(args, k, payload.Attributes[k])
	}
	e.Logger.Info("event", args...)
}

// Payload converts evt into its wire form. Events without a richer encoding
// carry only their type.
func Payload(evt Event) *types.Event {
	if provider, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := provider.Event(); payload != nil {
			return payload
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Multi fans each event out to every emitter in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(evt)
		}
	}
}
