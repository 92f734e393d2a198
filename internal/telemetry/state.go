package telemetry

import "time"

// Phase is a discrete flight phase label
type Phase string

const (
	PhaseParked     Phase = "parked"
	PhaseTaxiing    Phase = "taxiing"
	PhaseTakeoff    Phase = "takeoff"
	PhaseClimbing   Phase = "climbing"
	PhaseCruise     Phase = "cruise"
	PhaseDescending Phase = "descending"
	PhaseApproach   Phase = "approach"
	PhaseLanding    Phase = "landing"
	PhaseUnknown    Phase = "unknown"
)

// PhaseState is the current and previously recorded phase. Previous is empty
// until the first transition.
type PhaseState struct {
	Current  Phase `json:"current"`
	Previous Phase `json:"previous,omitempty"`
}

// NormalizedState is the canonical snapshot produced each poll cycle.
// Speeds are knots, altitudes feet, vertical speed ft/min, distance nm.
type NormalizedState struct {
	AltitudeFt          float64 `json:"altitude_ft"`
	AltitudeAGLFt       float64 `json:"altitude_agl_ft"`
	GroundAltitudeFt    float64 `json:"ground_altitude_ft"`
	GroundSpeedKt       float64 `json:"ground_speed_kt"`
	TrueAirspeedKt      float64 `json:"true_airspeed_kt"`
	IndicatedAirspeedKt float64 `json:"indicated_airspeed_kt"`
	HeadingDeg          float64 `json:"heading_deg"`
	VerticalSpeedFpm    float64 `json:"vertical_speed_fpm"`

	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	HasPosition bool    `json:"has_position"`

	// Derived from the WMM model when a position is known
	MagneticVariationDeg float64 `json:"magnetic_variation_deg"`
	MagneticHeadingDeg   float64 `json:"magnetic_heading_deg"`

	WindSpeedKt      float64 `json:"wind_speed_kt"`
	WindDirectionDeg float64 `json:"wind_direction_deg"`

	OnGround bool  `json:"on_ground"`
	Phase    Phase `json:"phase"`

	NextWaypoint     string  `json:"next_waypoint"`
	DistanceToDestNM float64 `json:"distance_to_dest_nm"`
	FuelRemainingLbs float64 `json:"fuel_remaining_lbs"`
	ETEMinutes       float64 `json:"ete_minutes"`

	SimConnectStatus string    `json:"simconnect_status"`
	Endpoint         string    `json:"endpoint"`
	Timestamp        time.Time `json:"timestamp"`

	Raw RawSample `json:"-"`
}
