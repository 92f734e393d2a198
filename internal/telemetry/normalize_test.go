package telemetry

import (
	"math"
	"testing"
	"time"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNormalizeCruiseScenario(t *testing.T) {
	raw := RawSample{
		"altitude":          35000.0,
		"ground_speed_ms":   231.6,
		"vertical_speed_ms": 0.0,
		"on_ground":         false,
	}

	s := Normalize(raw, nil, testTime)

	if !near(s.GroundSpeedKt, 450, 0.5) {
		t.Errorf("ground speed = %.2f kt, want ~450", s.GroundSpeedKt)
	}
	if s.AltitudeFt != 35000 {
		t.Errorf("altitude = %v", s.AltitudeFt)
	}
	if s.OnGround {
		t.Error("on_ground from source must be honoured")
	}
	if got := Classify(raw, s); got != PhaseCruise {
		t.Errorf("phase = %s, want cruise", got)
	}
}

func TestNormalizeUnitConversions(t *testing.T) {
	raw := RawSample{
		"indicated_altitude":    5000.0,
		"altitude_above_ground": 4200.0,
		"ground_altitude":       800.0,
		"ground_speed":          100.0,
		"true_airspeed":         110.0,
		"indicated_speed":       90.0,
		"heading":               -10.0,
		"vertical_speed":        -5.08,
		"wind_speed":            10.0,
		"wind_direction":        370.0,
		"next_wp_name":          "DIXON",
		"destination_distance":  100.0,
		"fuel_remaining":        "5400",
		"ete_hours":             1.5,
		"on_ground":             false,
	}

	s := Normalize(raw, nil, testTime)

	checks := []struct {
		name      string
		got, want float64
	}{
		{"agl", s.AltitudeAGLFt, 4200},
		{"ground altitude", s.GroundAltitudeFt, 800},
		{"ground speed", s.GroundSpeedKt, 194.3844},
		{"tas", s.TrueAirspeedKt, 213.82284},
		{"ias", s.IndicatedAirspeedKt, 174.94596},
		{"heading", s.HeadingDeg, 350},
		{"vertical speed", s.VerticalSpeedFpm, -1000},
		{"wind speed", s.WindSpeedKt, 19.43844},
		{"wind direction", s.WindDirectionDeg, 10},
		{"distance", s.DistanceToDestNM, 53.9957},
		{"fuel", s.FuelRemainingLbs, 5400},
		{"ete", s.ETEMinutes, 90},
	}
	for _, c := range checks {
		if !near(c.got, c.want, 0.01) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if s.NextWaypoint != "DIXON" {
		t.Errorf("next waypoint = %q", s.NextWaypoint)
	}
	if s.SimConnectStatus != "No Error" {
		t.Errorf("simconnect status = %q", s.SimConnectStatus)
	}
	if !s.Timestamp.Equal(testTime) {
		t.Errorf("timestamp = %v", s.Timestamp)
	}
}

func TestNormalizeMissingFieldsDefaultToZero(t *testing.T) {
	s := Normalize(RawSample{"indicated_altitude": "garbage", "ground_speed": nil}, nil, testTime)

	if s.AltitudeFt != 0 || s.GroundSpeedKt != 0 || s.VerticalSpeedFpm != 0 || s.DistanceToDestNM != 0 {
		t.Errorf("expected zeros, got %+v", s)
	}
	if s.HasPosition {
		t.Error("no position was supplied")
	}
}

func TestNormalizeClampsAltitude(t *testing.T) {
	s := Normalize(RawSample{"indicated_altitude": -35.0, "on_ground": true}, nil, testTime)
	if s.AltitudeFt != 0 {
		t.Errorf("altitude = %v, want 0", s.AltitudeFt)
	}
}

func TestNormalizeDerivesAGLWhenMissing(t *testing.T) {
	s := Normalize(RawSample{"indicated_altitude": 3000.0, "ground_altitude": 1200.0}, nil, testTime)
	if s.AltitudeAGLFt != 1800 {
		t.Errorf("agl = %v, want 1800", s.AltitudeAGLFt)
	}
}

func TestNormalizeOnGroundUsesPreviousAGL(t *testing.T) {
	prev := &NormalizedState{AltitudeAGLFt: 2}
	raw := RawSample{"indicated_altitude": 1500.0, "altitude_above_ground": 1500.0}

	// One-cycle lag: previous AGL was below 5 ft, so still on the ground
	s := Normalize(raw, prev, testTime)
	if !s.OnGround {
		t.Error("expected on_ground inferred from previous AGL")
	}

	s2 := Normalize(raw, &s, testTime)
	if s2.OnGround {
		t.Error("expected airborne once the previous AGL is above 5 ft")
	}
}

func TestNormalizeOnGroundFirstSampleUsesOwnAGL(t *testing.T) {
	if s := Normalize(RawSample{"altitude_above_ground": 2.0}, nil, testTime); !s.OnGround {
		t.Error("low first sample should be on the ground")
	}
	if s := Normalize(RawSample{"altitude_above_ground": 8000.0}, nil, testTime); s.OnGround {
		t.Error("high first sample should be airborne")
	}
}

func TestNormalizePosition(t *testing.T) {
	raw := RawSample{
		"position": map[string]any{"lat": 43.68, "lon": -79.63},
		"heading":  90.0,
	}
	s := Normalize(raw, nil, testTime)
	if !s.HasPosition || s.Latitude != 43.68 || s.Longitude != -79.63 {
		t.Errorf("position = %v/%v (has=%v)", s.Latitude, s.Longitude, s.HasPosition)
	}
	if s.MagneticHeadingDeg < 0 || s.MagneticHeadingDeg >= 360 {
		t.Errorf("magnetic heading out of range: %v", s.MagneticHeadingDeg)
	}
}
