// Package physics holds the unit conversions and small navigation helpers
// shared by the telemetry pipeline.
package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Conversion factors between source (SI-ish) units and presentation units
const (
	MsToKnots    = 1.943844 // m/s -> kt
	MsToFpm      = 196.85   // m/s -> ft/min
	KmToNM       = 0.539957 // km -> nm
	FeetToMeters = 0.3048

	// ISA values used for the Mach estimate
	R                 = 287.058 // Specific gas constant for dry air (J/(kg·K))
	Gamma             = 1.4
	T0                = 288.15 // Standard sea level temperature (K)
	L                 = 0.0065 // Temperature lapse rate (K/m) in troposphere
	ZeroCelsius       = 273.15
	TropopauseAltFt   = 36089.2
	StratosphereTempK = 216.65
)

// MsToKt converts metres per second to knots
func MsToKt(ms float64) float64 { return ms * MsToKnots }

// KtToMs converts knots to metres per second
func KtToMs(kt float64) float64 { return kt / MsToKnots }

// MsToFtPerMin converts a vertical speed in m/s to ft/min
func MsToFtPerMin(ms float64) float64 { return ms * MsToFpm }

// FtPerMinToMs converts a vertical speed in ft/min to m/s
func FtPerMinToMs(fpm float64) float64 { return fpm / MsToFpm }

// KmToNm converts kilometres to nautical miles
func KmToNm(km float64) float64 { return km * KmToNM }

// NmToKm converts nautical miles to kilometres
func NmToKm(nm float64) float64 { return nm / KmToNM }

// NormalizeHeading folds any angle into [0, 360)
func NormalizeHeading(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// ISATemperature returns the standard atmosphere temperature in Celsius at a pressure altitude
func ISATemperature(altFt float64) float64 {
	if altFt > TropopauseAltFt {
		return StratosphereTempK - ZeroCelsius
	}
	return T0 - L*altFt*FeetToMeters - ZeroCelsius
}

// CalculateMach returns the Mach number given TAS (knots) and temperature (Celsius)
func CalculateMach(tasKnots, tempCelsius float64) float64 {
	tempK := tempCelsius + ZeroCelsius
	if tempK <= 0 {
		return 0
	}
	a := math.Sqrt(Gamma * R * tempK)
	return KtToMs(tasKnots) / a
}

// WindComponents splits a wind (direction it blows FROM, speed) into the
// headwind and crosswind felt on the given heading. Negative headwind is a
// tailwind, positive crosswind comes from the right.
func WindComponents(windFromDeg, windSpeed, headingDeg float64) (headwind, crosswind float64) {
	rel := (windFromDeg - headingDeg) * math.Pi / 180
	return windSpeed * math.Cos(rel), windSpeed * math.Sin(rel)
}

// CalculateMagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func CalculateMagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lon, altFt*FeetToMeters)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0.0
	}

	return mag.D()
}

// MagneticHeading converts a true heading to magnetic using the given variation
func MagneticHeading(trueHeading, variation float64) float64 {
	return NormalizeHeading(trueHeading - variation)
}
