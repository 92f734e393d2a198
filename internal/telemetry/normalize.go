package telemetry

import (
	"math"
	"time"

	"github.com/yegors/navwatch/internal/physics"
)

// Source field names, first match wins
var (
	altitudeKeys       = []string{"indicated_altitude", "altitude"}
	aglKeys            = []string{"altitude_above_ground", "altitude_agl"}
	groundAltitudeKeys = []string{"ground_altitude"}
	groundSpeedKeys    = []string{"ground_speed", "ground_speed_ms"}
	trueAirspeedKeys   = []string{"true_airspeed"}
	indicatedKeys      = []string{"indicated_speed", "indicated_airspeed"}
	headingKeys        = []string{"heading"}
	verticalSpeedKeys  = []string{"vertical_speed", "vertical_speed_ms"}
	latitudeKeys       = []string{"position.lat", "lat", "latitude"}
	longitudeKeys      = []string{"position.lon", "lon", "longitude"}
	windSpeedKeys      = []string{"wind_speed"}
	windDirectionKeys  = []string{"wind_direction"}
	onGroundKeys       = []string{"on_ground"}
	waypointKeys       = []string{"next_wp_name", "next_waypoint"}
	destDistanceKeys   = []string{"destination_distance"}
	fuelKeys           = []string{"fuel_remaining"}
	eteKeys            = []string{"ete_hours"}
	phaseKeys          = []string{"phase", "flight_phase"}
	simStatusKeys      = []string{"simconnect_status"}
)

// onGroundAGLFt is the AGL under which the aircraft is inferred to be on the ground
const onGroundAGLFt = 5.0

const defaultSimConnectStatus = "No Error"

// Normalize maps a raw sample onto canonical units. Missing or unparseable
// numbers become 0. It never fails.
//
// When the source omits on_ground it is inferred from the previous snapshot's
// AGL, so the flag lags one cycle behind. With no previous snapshot the
// sample's own AGL is used.
func Normalize(raw RawSample, prev *NormalizedState, at time.Time) NormalizedState {
	s := NormalizedState{
		AltitudeFt:          math.Max(0, raw.Float(altitudeKeys...)),
		GroundAltitudeFt:    raw.Float(groundAltitudeKeys...),
		GroundSpeedKt:       physics.MsToKt(raw.Float(groundSpeedKeys...)),
		TrueAirspeedKt:      physics.MsToKt(raw.Float(trueAirspeedKeys...)),
		IndicatedAirspeedKt: physics.MsToKt(raw.Float(indicatedKeys...)),
		HeadingDeg:          physics.NormalizeHeading(raw.Float(headingKeys...)),
		VerticalSpeedFpm:    physics.MsToFtPerMin(raw.Float(verticalSpeedKeys...)),
		WindSpeedKt:         physics.MsToKt(raw.Float(windSpeedKeys...)),
		WindDirectionDeg:    physics.NormalizeHeading(raw.Float(windDirectionKeys...)),
		NextWaypoint:        raw.String(waypointKeys...),
		DistanceToDestNM:    physics.KmToNm(raw.Float(destDistanceKeys...)),
		FuelRemainingLbs:    raw.Float(fuelKeys...),
		ETEMinutes:          raw.Float(eteKeys...) * 60,
		SimConnectStatus:    raw.String(simStatusKeys...),
		Timestamp:           at,
		Raw:                 raw,
	}

	if raw.Has(aglKeys...) {
		s.AltitudeAGLFt = raw.Float(aglKeys...)
	} else {
		s.AltitudeAGLFt = math.Max(0, s.AltitudeFt-s.GroundAltitudeFt)
	}

	if raw.Has(latitudeKeys...) && raw.Has(longitudeKeys...) {
		s.Latitude = raw.Float(latitudeKeys...)
		s.Longitude = raw.Float(longitudeKeys...)
		s.HasPosition = true
		s.MagneticVariationDeg = physics.CalculateMagneticVariation(s.Latitude, s.Longitude, s.AltitudeFt, at)
	}
	s.MagneticHeadingDeg = physics.MagneticHeading(s.HeadingDeg, s.MagneticVariationDeg)

	if onGround, ok := raw.Bool(onGroundKeys...); ok {
		s.OnGround = onGround
	} else if prev != nil {
		s.OnGround = prev.AltitudeAGLFt < onGroundAGLFt
	} else {
		s.OnGround = s.AltitudeAGLFt < onGroundAGLFt
	}

	if s.SimConnectStatus == "" {
		s.SimConnectStatus = defaultSimConnectStatus
	}

	return s
}
