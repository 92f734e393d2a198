package websocket

import (
	"context"
	"errors"

	"github.com/yegors/navwatch/internal/telemetry"
)

// ErrHubStopped is returned when an event arrives after the hub has shut down
var ErrHubStopped = errors.New("websocket hub stopped")

// EventBroadcaster streams telemetry events to connected clients
type EventBroadcaster struct {
	server     *Server
	rawUpdates bool
}

// NewEventBroadcaster creates a listener for the telemetry engine. Raw
// updates are only forwarded when rawUpdates is set.
func NewEventBroadcaster(server *Server, rawUpdates bool) *EventBroadcaster {
	return &EventBroadcaster{server: server, rawUpdates: rawUpdates}
}

// HandleEvent implements telemetry.Listener
func (b *EventBroadcaster) HandleEvent(ctx context.Context, evt telemetry.Event) error {
	if evt.Type == telemetry.EventRawUpdate && !b.rawUpdates {
		return nil
	}
	if !b.server.Broadcast(ctx, EventMessage(evt)) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrHubStopped
	}
	return nil
}

// EventMessage converts a telemetry event to its wire message
func EventMessage(evt telemetry.Event) *Message {
	data := map[string]any{
		"id":        evt.ID,
		"timestamp": evt.Timestamp,
		"text":      evt.Text(),
		"snapshot":  evt.Snapshot,
	}

	switch evt.Type {
	case telemetry.EventPhaseChange:
		data["old_phase"] = evt.OldPhase
		data["new_phase"] = evt.NewPhase
	case telemetry.EventMilestone:
		data["milestone"] = evt.Milestone
	}

	return &Message{Type: string(evt.Type), Data: data}
}
