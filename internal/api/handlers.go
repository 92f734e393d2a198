package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/navwatch/internal/simulation"
	"github.com/yegors/navwatch/internal/storage/sqlite"
	"github.com/yegors/navwatch/internal/telemetry"
	"github.com/yegors/navwatch/pkg/logger"
)

// EngineStatus is the part of the engine the API reports on
type EngineStatus interface {
	Status() telemetry.Status
	PhaseState() telemetry.PhaseState
}

// EventStore serves recently logged flight events
type EventStore interface {
	RecentEvents(ctx context.Context, limit int) ([]*sqlite.EventRecord, error)
}

// SimulationControl drives the simulated aircraft
type SimulationControl interface {
	Aircraft() simulation.Aircraft
	UpdateControls(c simulation.Controls) error
	SetWaypoint(name string)
	SetWind(directionDeg, speedKt float64)
}

// simulationUpdate is a partial update; omitted fields keep their current value
type simulationUpdate struct {
	HeadingDeg       *float64 `json:"heading"`
	SpeedKt          *float64 `json:"speed"`
	VerticalRateFpm  *float64 `json:"vertical_rate"`
	Waypoint         *string  `json:"waypoint"`
	WindDirectionDeg *float64 `json:"wind_direction"`
	WindSpeedKt      *float64 `json:"wind_speed"`
}

var icaoPattern = regexp.MustCompile(`^[A-Z0-9]{3,4}$`)

// Handler contains the API handlers
type Handler struct {
	engine    EngineStatus
	query     *telemetry.Query
	events    EventStore
	maxEvents int
	sim       SimulationControl
	logger    *logger.Logger
}

// NewHandler creates a new API handler. events may be nil when the flight
// log is disabled.
func NewHandler(engine EngineStatus, query *telemetry.Query, events EventStore, maxEvents int, log *logger.Logger) *Handler {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Handler{
		engine:    engine,
		query:     query,
		events:    events,
		maxEvents: maxEvents,
		logger:    log.Named("api-handler"),
	}
}

// GetHealth returns the health status of the API and the poll loop
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()

	response := map[string]any{
		"status":    "ok",
		"engine":    status,
		"simulator": status.HasData,
	}
	if status.State != telemetry.StateRunning.String() {
		response["status"] = status.State
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetSimInfo returns the legacy simulator view
func (h *Handler) GetSimInfo(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.query.SimInfo())
}

// GetFlightData returns the structured flight data
func (h *Handler) GetFlightData(w http.ResponseWriter, r *http.Request) {
	fd, ok := h.query.CurrentFlightData()
	if !ok {
		WriteError(w, http.StatusNotFound, telemetry.NoDataText)
		return
	}
	WriteJSON(w, http.StatusOK, fd)
}

// GetStatusText returns a plain text status line
func (h *Handler) GetStatusText(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch strings.ToLower(format) {
	case "", telemetry.FormatFull, telemetry.FormatBrief, telemetry.FormatWeather:
	default:
		WriteError(w, http.StatusBadRequest, "format must be one of full, brief, weather")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.query.StatusText(format)))
}

// GetPhase returns the current and previous flight phase
func (h *Handler) GetPhase(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.engine.PhaseState())
}

// GetAirport returns airport information by ICAO code
func (h *Handler) GetAirport(w http.ResponseWriter, r *http.Request) {
	icao := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "icao")))
	if !icaoPattern.MatchString(icao) {
		WriteError(w, http.StatusBadRequest, "invalid ICAO code")
		return
	}

	info := h.query.Airport(r.Context(), icao)
	if len(info) == 0 {
		WriteError(w, http.StatusNotFound, "airport not found")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"icao":    icao,
		"info":    info,
		"summary": telemetry.FormatAirport(info),
	})
}

// GetEvents returns recently logged phase changes and milestones
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		WriteError(w, http.StatusNotFound, "flight log is disabled")
		return
	}

	limit := h.maxEvents
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, h.maxEvents)
	}

	records, err := h.events.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read flight events", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to read flight events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"events": records,
		"count":  len(records),
	})
}

// SetSimulation enables the simulation endpoints
func (h *Handler) SetSimulation(sim SimulationControl) {
	h.sim = sim
}

// GetSimulation returns the simulated aircraft
func (h *Handler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.sim.Aircraft())
}

// UpdateSimulationControls sets heading, speed and vertical rate of the simulated aircraft
func (h *Handler) UpdateSimulationControls(w http.ResponseWriter, r *http.Request) {
	var req simulationUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WindSpeedKt != nil && *req.WindSpeedKt < 0 {
		WriteError(w, http.StatusBadRequest, "wind speed must not be negative")
		return
	}

	current := h.sim.Aircraft()
	controls := current.Controls
	if req.HeadingDeg != nil {
		controls.HeadingDeg = *req.HeadingDeg
	}
	if req.SpeedKt != nil {
		controls.SpeedKt = *req.SpeedKt
	}
	if req.VerticalRateFpm != nil {
		controls.VerticalRateFpm = *req.VerticalRateFpm
	}
	if err := h.sim.UpdateControls(controls); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Waypoint != nil {
		h.sim.SetWaypoint(*req.Waypoint)
	}
	if req.WindDirectionDeg != nil || req.WindSpeedKt != nil {
		dir, speed := current.WindDirectionDeg, current.WindSpeedKt
		if req.WindDirectionDeg != nil {
			dir = *req.WindDirectionDeg
		}
		if req.WindSpeedKt != nil {
			speed = *req.WindSpeedKt
		}
		h.sim.SetWind(dir, speed)
	}

	h.logger.Info("Updated simulation controls",
		logger.Float64("heading", controls.HeadingDeg),
		logger.Float64("speed", controls.SpeedKt),
		logger.Float64("vertical_rate", controls.VerticalRateFpm))

	WriteJSON(w, http.StatusOK, h.sim.Aircraft())
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes {"error": msg}
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
