package telemetry

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/yegors/navwatch/internal/physics"
)

// SnapshotSource exposes the current normalized state
type SnapshotSource interface {
	Snapshot() (NormalizedState, bool)
}

// Query is the read-only facade over the engine's last snapshot
type Query struct {
	source   SnapshotSource
	airports *AirportService
}

// NewQuery creates a facade. airports may be nil, in which case Airport
// always returns an empty result.
func NewQuery(source SnapshotSource, airports *AirportService) *Query {
	return &Query{source: source, airports: airports}
}

// Position is a lat/lon pair
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SimInfo is the legacy view with speeds converted back to m/s.
// An inactive SimInfo marshals as {"active":false}.
type SimInfo struct {
	Active            bool     `json:"active"`
	SimConnectStatus  string   `json:"simconnect_status"`
	IndicatedAltitude float64  `json:"indicated_altitude"`
	AltitudeAboveGnd  float64  `json:"altitude_above_ground"`
	GroundAltitude    float64  `json:"ground_altitude"`
	GroundSpeed       float64  `json:"ground_speed"`
	TrueAirspeed      float64  `json:"true_airspeed"`
	IndicatedSpeed    float64  `json:"indicated_speed"`
	Heading           float64  `json:"heading"`
	VerticalSpeed     float64  `json:"vertical_speed"`
	Position          Position `json:"position"`
	WindSpeed         float64  `json:"wind_speed"`
	WindDirection     float64  `json:"wind_direction"`
	Phase             string   `json:"phase"`
	NextWaypointName  string   `json:"next_wp_name"`
	OnGround          bool     `json:"on_ground"`
}

// MarshalJSON drops every field but "active" for an inactive view
func (s SimInfo) MarshalJSON() ([]byte, error) {
	if !s.Active {
		return []byte(`{"active":false}`), nil
	}
	type plain SimInfo
	return json.Marshal(plain(s))
}

// SimInfo returns the legacy view of the last snapshot
func (q *Query) SimInfo() SimInfo {
	s, ok := q.source.Snapshot()
	if !ok {
		return SimInfo{}
	}
	return SimInfo{
		Active:            true,
		SimConnectStatus:  s.SimConnectStatus,
		IndicatedAltitude: s.AltitudeFt,
		AltitudeAboveGnd:  s.AltitudeAGLFt,
		GroundAltitude:    s.GroundAltitudeFt,
		GroundSpeed:       physics.KtToMs(s.GroundSpeedKt),
		TrueAirspeed:      physics.KtToMs(s.TrueAirspeedKt),
		IndicatedSpeed:    physics.KtToMs(s.IndicatedAirspeedKt),
		Heading:           s.HeadingDeg,
		VerticalSpeed:     physics.FtPerMinToMs(s.VerticalSpeedFpm),
		Position:          Position{Lat: s.Latitude, Lon: s.Longitude},
		WindSpeed:         physics.KtToMs(s.WindSpeedKt),
		WindDirection:     s.WindDirectionDeg,
		Phase:             string(s.Phase),
		NextWaypointName:  s.NextWaypoint,
		OnGround:          s.OnGround,
	}
}

// AircraftData groups the aircraft state in presentation units
type AircraftData struct {
	Altitude          float64 `json:"altitude"`
	AltitudeAGL       float64 `json:"altitude_agl"`
	Speed             float64 `json:"speed"`
	TrueAirspeed      float64 `json:"true_airspeed"`
	IndicatedAirspeed float64 `json:"indicated_airspeed"`
	Mach              float64 `json:"mach"`
	Heading           float64 `json:"heading"`
	MagneticHeading   float64 `json:"magnetic_heading"`
	VerticalSpeed     float64 `json:"vertical_speed"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	OnGround          bool    `json:"on_ground"`
}

// EnvironmentData groups wind information
type EnvironmentData struct {
	WindSpeed         float64 `json:"wind_speed"`
	WindDirection     float64 `json:"wind_direction"`
	Headwind          float64 `json:"headwind"`
	Crosswind         float64 `json:"crosswind"`
	MagneticVariation float64 `json:"magnetic_variation"`
}

// NavigationData groups route progress
type NavigationData struct {
	Phase                 string  `json:"phase"`
	NextWaypoint          string  `json:"next_waypoint"`
	DistanceToDestination float64 `json:"distance_to_destination"`
	FuelRemaining         float64 `json:"fuel_remaining"`
	ETEMinutes            float64 `json:"ete_minutes"`
}

// FlightData is the structured current-flight view
type FlightData struct {
	Aircraft    AircraftData    `json:"aircraft"`
	Environment EnvironmentData `json:"environment"`
	Navigation  NavigationData  `json:"navigation"`
	Timestamp   time.Time       `json:"timestamp"`
}

// CurrentFlightData returns the structured view, false when there is no data
func (q *Query) CurrentFlightData() (FlightData, bool) {
	s, ok := q.source.Snapshot()
	if !ok {
		return FlightData{}, false
	}

	head, cross := physics.WindComponents(s.WindDirectionDeg, s.WindSpeedKt, s.HeadingDeg)

	var mach float64
	if s.TrueAirspeedKt > 0 {
		mach = physics.CalculateMach(s.TrueAirspeedKt, physics.ISATemperature(s.AltitudeFt))
	}

	return FlightData{
		Aircraft: AircraftData{
			Altitude:          s.AltitudeFt,
			AltitudeAGL:       s.AltitudeAGLFt,
			Speed:             s.GroundSpeedKt,
			TrueAirspeed:      s.TrueAirspeedKt,
			IndicatedAirspeed: s.IndicatedAirspeedKt,
			Mach:              mach,
			Heading:           s.HeadingDeg,
			MagneticHeading:   s.MagneticHeadingDeg,
			VerticalSpeed:     s.VerticalSpeedFpm,
			Latitude:          s.Latitude,
			Longitude:         s.Longitude,
			OnGround:          s.OnGround,
		},
		Environment: EnvironmentData{
			WindSpeed:         s.WindSpeedKt,
			WindDirection:     s.WindDirectionDeg,
			Headwind:          head,
			Crosswind:         cross,
			MagneticVariation: s.MagneticVariationDeg,
		},
		Navigation: NavigationData{
			Phase:                 string(s.Phase),
			NextWaypoint:          s.NextWaypoint,
			DistanceToDestination: s.DistanceToDestNM,
			FuelRemaining:         s.FuelRemainingLbs,
			ETEMinutes:            s.ETEMinutes,
		},
		Timestamp: s.Timestamp,
	}, true
}

// Status formats of StatusText
const (
	FormatFull    = "full"
	FormatBrief   = "brief"
	FormatWeather = "weather"
)

// NoDataText is returned by StatusText while there is no snapshot
const NoDataText = "No flight data available"

// StatusText renders the current state in one of the status formats;
// unknown formats fall back to full
func (q *Query) StatusText(format string) string {
	info := q.SimInfo()
	if !info.Active {
		return NoDataText
	}
	switch strings.ToLower(format) {
	case FormatBrief:
		return FormatBriefStatus(info)
	case FormatWeather:
		return FormatWeatherData(info)
	}
	return FormatFlightData(info)
}

// Airport looks up an ICAO code; empty when nothing is known
func (q *Query) Airport(ctx context.Context, icao string) AirportInfo {
	if q.airports == nil {
		return AirportInfo{}
	}
	return q.airports.Lookup(ctx, icao)
}
