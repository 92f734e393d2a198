package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/yegors/navwatch/internal/physics"
	"github.com/yegors/navwatch/internal/telemetry"
	"github.com/yegors/navwatch/pkg/logger"
)

// Endpoint is reported as the sample origin
const Endpoint = "simulation"

// Control limits
const (
	MaxSpeedKt         = 700
	MaxVerticalRateFpm = 8000
)

// Controls are the targets the simulated aircraft flies
type Controls struct {
	HeadingDeg      float64 `json:"heading"`
	SpeedKt         float64 `json:"speed"`
	VerticalRateFpm float64 `json:"vertical_rate"`
}

// Aircraft is the simulated aircraft state
type Aircraft struct {
	Controls

	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	AltitudeFt       float64   `json:"altitude_ft"`
	GroundAltitudeFt float64   `json:"ground_altitude_ft"`
	NextWaypoint     string    `json:"next_waypoint,omitempty"`
	WindDirectionDeg float64   `json:"wind_direction"`
	WindSpeedKt      float64   `json:"wind_speed"`
	LastUpdate       time.Time `json:"last_update"`
}

// OnGround reports whether the aircraft sits at ground elevation
func (a Aircraft) OnGround() bool {
	return a.AltitudeFt <= a.GroundAltitudeFt
}

// Options places the aircraft at startup
type Options struct {
	Latitude    float64
	Longitude   float64
	ElevationFt float64
	HeadingDeg  float64
}

// Source is a telemetry.Source backed by a dead-reckoned aircraft. It stands
// in for LittleNavmap when no simulator is running.
type Source struct {
	mu       sync.RWMutex
	aircraft Aircraft
	now      func() time.Time
	logger   *logger.Logger
}

// NewSource creates a parked aircraft at the given position
func NewSource(opts Options, log *logger.Logger) *Source {
	return newSource(opts, time.Now, log)
}

func newSource(opts Options, now func() time.Time, log *logger.Logger) *Source {
	return &Source{
		aircraft: Aircraft{
			Controls:         Controls{HeadingDeg: physics.NormalizeHeading(opts.HeadingDeg)},
			Latitude:         opts.Latitude,
			Longitude:        opts.Longitude,
			AltitudeFt:       opts.ElevationFt,
			GroundAltitudeFt: opts.ElevationFt,
			LastUpdate:       now().UTC(),
		},
		now:    now,
		logger: log.Named("simulation"),
	}
}

// Resolve advances the aircraft to now and reports it as a sample
func (s *Source) Resolve(ctx context.Context) telemetry.Resolution {
	if err := ctx.Err(); err != nil {
		return telemetry.Resolution{Attempts: []telemetry.Attempt{{Endpoint: Endpoint, Err: err}}}
	}

	s.mu.Lock()
	now := s.now().UTC()
	if dt := now.Sub(s.aircraft.LastUpdate).Seconds(); dt > 0 {
		advance(&s.aircraft, dt)
		s.aircraft.LastUpdate = now
	}
	a := s.aircraft
	s.mu.Unlock()

	data := a.RawSample()
	body, err := json.Marshal(data)
	if err != nil {
		return telemetry.Resolution{Attempts: []telemetry.Attempt{{Endpoint: Endpoint, Err: err}}}
	}

	return telemetry.Resolution{
		Sample: &telemetry.Sample{
			Data:     data,
			Body:     body,
			Endpoint: Endpoint,
			Fetched:  now,
		},
		Attempts: []telemetry.Attempt{{Endpoint: Endpoint}},
	}
}

// UpdateControls sets new targets for the aircraft
func (s *Source) UpdateControls(c Controls) error {
	if c.SpeedKt < 0 || c.SpeedKt > MaxSpeedKt {
		return fmt.Errorf("speed must be between 0 and %d kt: %v", MaxSpeedKt, c.SpeedKt)
	}
	if math.Abs(c.VerticalRateFpm) > MaxVerticalRateFpm {
		return fmt.Errorf("vertical rate must be within ±%d ft/min: %v", MaxVerticalRateFpm, c.VerticalRateFpm)
	}
	c.HeadingDeg = physics.NormalizeHeading(c.HeadingDeg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.aircraft.Controls = c

	s.logger.Debug("Updated simulation controls",
		logger.Float64("heading", c.HeadingDeg),
		logger.Float64("speed", c.SpeedKt),
		logger.Float64("vertical_rate", c.VerticalRateFpm))
	return nil
}

// SetWaypoint sets the name reported as the next waypoint
func (s *Source) SetWaypoint(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aircraft.NextWaypoint = name
}

// SetWind sets the reported wind
func (s *Source) SetWind(directionDeg, speedKt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aircraft.WindDirectionDeg = physics.NormalizeHeading(directionDeg)
	s.aircraft.WindSpeedKt = math.Max(0, speedKt)
}

// Aircraft returns the current aircraft state
func (s *Source) Aircraft() Aircraft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aircraft
}

// RawSample renders the aircraft with LittleNavmap field names and units
func (a Aircraft) RawSample() telemetry.RawSample {
	data := telemetry.RawSample{
		"active":             true,
		"simconnect_status":  "No Error",
		"indicated_altitude": a.AltitudeFt,
		"ground_altitude":    a.GroundAltitudeFt,
		"ground_speed":       physics.KtToMs(a.SpeedKt),
		"true_airspeed":      physics.KtToMs(a.SpeedKt),
		"indicated_speed":    physics.KtToMs(a.SpeedKt),
		"heading":            a.HeadingDeg,
		"vertical_speed":     physics.FtPerMinToMs(a.VerticalRateFpm),
		"wind_direction":     a.WindDirectionDeg,
		"wind_speed":         physics.KtToMs(a.WindSpeedKt),
		"on_ground":          a.OnGround(),
		"position": map[string]any{
			"lat": a.Latitude,
			"lon": a.Longitude,
		},
	}
	if a.NextWaypoint != "" {
		data["next_wp_name"] = a.NextWaypoint
	}
	return data
}

// advance moves the aircraft by dead reckoning over dt seconds
func advance(a *Aircraft, dt float64) {
	// 0° = north, clockwise
	headingRad := a.HeadingDeg * math.Pi / 180

	distanceNM := a.SpeedKt * dt / 3600

	// 1° latitude ≈ 60 nm
	a.Latitude += distanceNM * math.Cos(headingRad) / 60
	if cosLat := math.Cos(a.Latitude * math.Pi / 180); math.Abs(cosLat) > 1e-9 {
		a.Longitude += distanceNM * math.Sin(headingRad) / (60 * cosLat)
	}
	a.Longitude = wrapLongitude(a.Longitude)

	a.AltitudeFt += a.VerticalRateFpm * dt / 60
	if a.AltitudeFt <= a.GroundAltitudeFt {
		a.AltitudeFt = a.GroundAltitudeFt
		if a.VerticalRateFpm < 0 {
			a.VerticalRateFpm = 0
		}
	}
}

func wrapLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
