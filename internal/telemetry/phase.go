package telemetry

import (
	"math"
	"strings"
)

// Classify returns the explicit phase carried by the raw sample, lower-cased,
// or derives one from the normalized metrics.
func Classify(raw RawSample, s NormalizedState) Phase {
	if explicit := strings.ToLower(raw.String(phaseKeys...)); explicit != "" {
		return Phase(explicit)
	}
	return ClassifyMetrics(s)
}

// ClassifyMetrics applies the threshold rules in order; the first match wins
func ClassifyMetrics(s NormalizedState) Phase {
	agl := s.AltitudeAGLFt
	gs := s.GroundSpeedKt
	vs := s.VerticalSpeedFpm

	switch {
	case s.OnGround && gs < 5:
		return PhaseParked
	case s.OnGround && gs >= 5:
		return PhaseTaxiing
	case agl < 50 && gs > 40:
		return PhaseTakeoff
	case agl < 1000 && vs > 300:
		return PhaseClimbing
	case agl > 3000 && math.Abs(vs) < 200:
		return PhaseCruise
	case vs < -300:
		return PhaseDescending
	case agl < 300 && vs < 0:
		return PhaseApproach
	case s.OnGround && gs > 5:
		// shadowed by the taxiing rule
		return PhaseLanding
	}
	return PhaseUnknown
}
