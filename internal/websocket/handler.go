package websocket

import (
	"fmt"

	"github.com/yegors/navwatch/internal/telemetry"
	"github.com/yegors/navwatch/pkg/logger"
)

// FlightDataSource supplies the current flight data for snapshot requests
type FlightDataSource interface {
	CurrentFlightData() (telemetry.FlightData, bool)
}

// TelemetryHandler handles incoming client messages
type TelemetryHandler struct {
	source FlightDataSource
	logger *logger.Logger
}

// NewTelemetryHandler creates a new WebSocket message handler
func NewTelemetryHandler(source FlightDataSource, log *logger.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		source: source,
		logger: log.Named("ws-handler"),
	}
}

// HandleMessage handles incoming WebSocket messages
func (h *TelemetryHandler) HandleMessage(client *Client, messageType string, data map[string]any) error {
	switch messageType {
	case MessageTypeSnapshotRequest:
		return h.handleSnapshotRequest(client)
	case MessageTypeFilterUpdate:
		return h.handleFilterUpdate(client, data)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
		return nil
	}
}

func (h *TelemetryHandler) handleSnapshotRequest(client *Client) error {
	message := SnapshotMessage(h.source)
	if !client.SendMessage(message) {
		return fmt.Errorf("client send buffer full or closed")
	}
	return nil
}

// SnapshotMessage builds the reply to a snapshot request
func SnapshotMessage(source FlightDataSource) *Message {
	fd, ok := source.CurrentFlightData()
	if !ok {
		return &Message{
			Type: MessageTypeSnapshotResponse,
			Data: map[string]any{"active": false},
		}
	}
	return &Message{
		Type: MessageTypeSnapshotResponse,
		Data: map[string]any{
			"active":      true,
			"flight_data": fd,
		},
	}
}

func (h *TelemetryHandler) handleFilterUpdate(client *Client, data map[string]any) error {
	filters, err := ParseFilters(data)
	if err != nil {
		return err
	}
	client.UpdateFilters(filters)
	h.logger.Debug("Updated client filters", logger.Int("event_types", len(filters.EventTypes)))
	return nil
}

// ParseFilters reads {"event_types": ["phase_change", ...]}
func ParseFilters(data map[string]any) (*ClientFilters, error) {
	filters := &ClientFilters{EventTypes: make(map[string]bool)}

	raw, ok := data["event_types"]
	if !ok || raw == nil {
		return filters, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("event_types must be a list, got %T", raw)
	}
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("event_types entries must be strings, got %T", item)
		}
		filters.EventTypes[name] = true
	}
	return filters, nil
}
