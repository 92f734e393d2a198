package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yegors/navwatch/internal/config"
	"github.com/yegors/navwatch/internal/simulation"
	"github.com/yegors/navwatch/internal/storage/sqlite"
	"github.com/yegors/navwatch/internal/telemetry"
	"github.com/yegors/navwatch/pkg/logger"
)

type fakeEngine struct {
	snap   *telemetry.NormalizedState
	status telemetry.Status
	phase  telemetry.PhaseState
}

func (f *fakeEngine) Snapshot() (telemetry.NormalizedState, bool) {
	if f.snap == nil {
		return telemetry.NormalizedState{}, false
	}
	return *f.snap, true
}

func (f *fakeEngine) Status() telemetry.Status         { return f.status }
func (f *fakeEngine) PhaseState() telemetry.PhaseState { return f.phase }

type fakeEvents struct {
	records []*sqlite.EventRecord
	limit   int
	err     error
}

func (f *fakeEvents) RecentEvents(_ context.Context, limit int) ([]*sqlite.EventRecord, error) {
	f.limit = limit
	return f.records, f.err
}

func cruiseState() *telemetry.NormalizedState {
	return &telemetry.NormalizedState{
		AltitudeFt:       35000,
		GroundSpeedKt:    450,
		TrueAirspeedKt:   460,
		HeadingDeg:       90,
		WindSpeedKt:      20,
		WindDirectionDeg: 270,
		Phase:            telemetry.PhaseCruise,
		SimConnectStatus: "No Error",
		Timestamp:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestRouter(t *testing.T, eng *fakeEngine, events EventStore, airportHost *httptest.Server, cfg config.ServerConfig) http.Handler {
	t.Helper()
	var airports *telemetry.AirportService
	if airportHost != nil {
		fetcher := telemetry.NewFetcher(airportHost.URL, time.Second, logger.NewNop())
		airports = telemetry.NewAirportService(fetcher, telemetry.AirportOptions{}, logger.NewNop())
	}
	query := telemetry.NewQuery(eng, airports)
	h := NewHandler(eng, query, events, 50, logger.NewNop())
	return NewRouter(h, nil, cfg, logger.NewNop()).Routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	eng := &fakeEngine{status: telemetry.Status{State: "running", Cycles: 3, HasData: true}}
	router := newTestRouter(t, eng, nil, nil, config.ServerConfig{})

	rec := get(t, router, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" || resp["simulator"] != true {
		t.Errorf("unexpected health response: %v", resp)
	}

	eng.status.State = "backoff"
	rec = get(t, router, "/health")
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["status"] != "backoff" {
		t.Errorf("status = %v, want backoff", resp["status"])
	}
}

func TestFlightDataEndpoints(t *testing.T) {
	eng := &fakeEngine{}
	router := newTestRouter(t, eng, nil, nil, config.ServerConfig{})

	if rec := get(t, router, "/api/v1/flight-data"); rec.Code != http.StatusNotFound {
		t.Errorf("flight-data without data: got %d, want 404", rec.Code)
	}

	rec := get(t, router, "/api/v1/sim-info")
	if strings.TrimSpace(rec.Body.String()) != `{"active":false}` {
		t.Errorf("inactive sim-info = %s", rec.Body.String())
	}

	rec = get(t, router, "/api/v1/status")
	if rec.Body.String() != telemetry.NoDataText {
		t.Errorf("status text = %q", rec.Body.String())
	}

	eng.snap = cruiseState()

	rec = get(t, router, "/api/v1/flight-data")
	if rec.Code != http.StatusOK {
		t.Fatalf("flight-data: got %d", rec.Code)
	}
	var fd telemetry.FlightData
	if err := json.NewDecoder(rec.Body).Decode(&fd); err != nil {
		t.Fatal(err)
	}
	if fd.Aircraft.Altitude != 35000 || fd.Navigation.Phase != "cruise" {
		t.Errorf("flight data = %+v", fd)
	}

	rec = get(t, router, "/api/v1/sim-info")
	var info map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info["active"] != true || info["phase"] != "cruise" {
		t.Errorf("sim-info = %v", info)
	}

	rec = get(t, router, "/api/v1/status?format=weather")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "Wind: 270°") {
		t.Errorf("weather text = %q", rec.Body.String())
	}

	if rec := get(t, router, "/api/v1/status?format=xml"); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format: got %d, want 400", rec.Code)
	}
}

func TestPhaseEndpoint(t *testing.T) {
	eng := &fakeEngine{phase: telemetry.PhaseState{Current: telemetry.PhaseCruise, Previous: telemetry.PhaseClimbing}}
	router := newTestRouter(t, eng, nil, nil, config.ServerConfig{})

	rec := get(t, router, "/api/v1/phase")
	var ps telemetry.PhaseState
	if err := json.NewDecoder(rec.Body).Decode(&ps); err != nil {
		t.Fatal(err)
	}
	if ps.Current != telemetry.PhaseCruise || ps.Previous != telemetry.PhaseClimbing {
		t.Errorf("phase = %+v", ps)
	}
}

func TestAirportEndpoint(t *testing.T) {
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/airport/info" || r.URL.Query().Get("ident") != "CYYZ" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"name":"Toronto Pearson","ident":"CYYZ","city":"Toronto","country":"Canada"}`))
	}))
	defer host.Close()

	router := newTestRouter(t, &fakeEngine{}, nil, host, config.ServerConfig{})

	rec := get(t, router, "/api/v1/airports/cyyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["icao"] != "CYYZ" {
		t.Errorf("icao = %v", resp["icao"])
	}
	if summary, _ := resp["summary"].(string); !strings.HasPrefix(summary, "Toronto Pearson (CYYZ) | Toronto, Canada") {
		t.Errorf("summary = %q", summary)
	}

	if rec := get(t, router, "/api/v1/airports/KXXX"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown airport: got %d, want 404", rec.Code)
	}
	if rec := get(t, router, "/api/v1/airports/not-an-icao"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid icao: got %d, want 400", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeEngine{}, nil, nil, config.ServerConfig{})
	if rec := get(t, router, "/api/v1/events"); rec.Code != http.StatusNotFound {
		t.Errorf("disabled flight log: got %d, want 404", rec.Code)
	}

	store := &fakeEvents{records: []*sqlite.EventRecord{{ID: 1, Type: "milestone", Text: "Reached flight level 350"}}}
	router = newTestRouter(t, &fakeEngine{}, store, nil, config.ServerConfig{})

	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, 50},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=1000", http.StatusOK, 50},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			store.limit = 0
			rec := get(t, router, "/api/v1/events"+tt.query)
			if rec.Code != tt.wantCode {
				t.Fatalf("got %d, want %d", rec.Code, tt.wantCode)
			}
			if store.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", store.limit, tt.wantLimit)
			}
		})
	}

	store.err = errors.New("disk full")
	if rec := get(t, router, "/api/v1/events"); rec.Code != http.StatusInternalServerError {
		t.Errorf("store error: got %d, want 500", rec.Code)
	}
}

type fakeSimulation struct {
	aircraft simulation.Aircraft
}

func (f *fakeSimulation) Aircraft() simulation.Aircraft { return f.aircraft }

func (f *fakeSimulation) UpdateControls(c simulation.Controls) error {
	if c.SpeedKt > simulation.MaxSpeedKt {
		return errors.New("too fast")
	}
	f.aircraft.Controls = c
	return nil
}

func (f *fakeSimulation) SetWaypoint(name string) { f.aircraft.NextWaypoint = name }

func (f *fakeSimulation) SetWind(directionDeg, speedKt float64) {
	f.aircraft.WindDirectionDeg = directionDeg
	f.aircraft.WindSpeedKt = speedKt
}

func TestSimulationEndpoints(t *testing.T) {
	eng := &fakeEngine{}
	query := telemetry.NewQuery(eng, nil)

	h := NewHandler(eng, query, nil, 0, logger.NewNop())
	router := NewRouter(h, nil, config.ServerConfig{}, logger.NewNop()).Routes()
	if rec := get(t, router, "/api/v1/simulation"); rec.Code != http.StatusNotFound {
		t.Errorf("simulation disabled: got %d, want 404", rec.Code)
	}

	sim := &fakeSimulation{}
	h.SetSimulation(sim)
	router = NewRouter(h, nil, config.ServerConfig{}, logger.NewNop()).Routes()

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/simulation/controls", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"heading":270,"speed":250,"vertical_rate":1500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if sim.aircraft.HeadingDeg != 270 || sim.aircraft.SpeedKt != 250 || sim.aircraft.VerticalRateFpm != 1500 {
		t.Errorf("controls = %+v", sim.aircraft.Controls)
	}

	if rec := post(`{"speed":900}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid controls: got %d, want 400", rec.Code)
	}
	if rec := post(`not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body: got %d, want 400", rec.Code)
	}

	rec = post(`{"waypoint":"LORLO","wind_direction":310,"wind_speed":25}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if sim.aircraft.NextWaypoint != "LORLO" || sim.aircraft.WindDirectionDeg != 310 || sim.aircraft.WindSpeedKt != 25 {
		t.Errorf("aircraft = %+v", sim.aircraft)
	}
	if sim.aircraft.HeadingDeg != 270 || sim.aircraft.SpeedKt != 250 {
		t.Errorf("controls changed by waypoint update: %+v", sim.aircraft.Controls)
	}

	if rec := post(`{"speed":180}`); rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if sim.aircraft.HeadingDeg != 270 || sim.aircraft.VerticalRateFpm != 1500 || sim.aircraft.SpeedKt != 180 {
		t.Errorf("partial update: %+v", sim.aircraft.Controls)
	}

	if rec := post(`{"wind_speed":10}`); rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if sim.aircraft.WindDirectionDeg != 310 || sim.aircraft.WindSpeedKt != 10 {
		t.Errorf("wind = %v/%v", sim.aircraft.WindDirectionDeg, sim.aircraft.WindSpeedKt)
	}
	if rec := post(`{"wind_speed":-5}`); rec.Code != http.StatusBadRequest {
		t.Errorf("negative wind: got %d, want 400", rec.Code)
	}

	rec = get(t, router, "/api/v1/simulation")
	var a simulation.Aircraft
	if err := json.NewDecoder(rec.Body).Decode(&a); err != nil {
		t.Fatal(err)
	}
	if a.SpeedKt != 180 || a.NextWaypoint != "LORLO" {
		t.Errorf("aircraft = %+v", a)
	}
}

func TestCORSHeaders(t *testing.T) {
	router := newTestRouter(t, &fakeEngine{}, nil, nil, config.ServerConfig{CORSAllowedOrigins: []string{"http://dash.local"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/phase", nil)
	req.Header.Set("Origin", "http://dash.local")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://dash.local" {
		t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/phase", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unexpected allow origin for unlisted origin")
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>navwatch</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	router := newTestRouter(t, &fakeEngine{}, nil, nil, config.ServerConfig{StaticFilesDir: dir})

	rec := get(t, router, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "navwatch") {
		t.Errorf("index: got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Error("expected no-cache headers")
	}

	if rec := get(t, router, "/missing.js"); rec.Code != http.StatusNotFound {
		t.Errorf("missing file: got %d, want 404", rec.Code)
	}
}

func TestStaticResolveStaysInRoot(t *testing.T) {
	h := NewStaticFileHandler(t.TempDir(), logger.NewNop())
	for _, p := range []string{"/../etc/passwd", "/a/../../secret", "../x"} {
		full, ok, err := h.resolve(p)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || !strings.HasPrefix(full, h.staticDir+string(filepath.Separator)) {
			t.Errorf("resolve(%q) = %s, %v; want a path under the root", p, full, ok)
		}
	}
}
