package telemetry

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/yegors/navwatch/internal/physics"
)

func round(v float64) int {
	return int(math.Round(v))
}

// thousands renders n with comma separators, e.g. 35,000
func thousands(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

func titlePhase(phase string) string {
	if phase == "" {
		phase = string(PhaseUnknown)
	}
	return cases.Title(language.English).String(phase)
}

// FormatFlightData renders a one-line full status, e.g.
// "Phase: Cruise | Altitude: 35,000 ft (34,200 AGL) | Speed: 450 kt | Heading: 270°"
func FormatFlightData(info SimInfo) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Phase: %s | Altitude: %s ft (%s AGL) | Speed: %d kt | Heading: %d°",
		titlePhase(info.Phase),
		thousands(round(info.IndicatedAltitude)),
		thousands(round(info.AltitudeAboveGnd)),
		round(physics.MsToKt(info.GroundSpeed)),
		round(info.Heading),
	)

	if info.WindSpeed != 0 {
		fmt.Fprintf(&sb, " | Wind: %d° @ %d kt", round(info.WindDirection), round(physics.MsToKt(info.WindSpeed)))
	}
	if info.NextWaypointName != "" {
		sb.WriteString(" | Next: ")
		sb.WriteString(info.NextWaypointName)
	}

	return sb.String()
}

// FormatBriefStatus renders e.g. "Cruise - 35,000 ft at 450 kt"
func FormatBriefStatus(info SimInfo) string {
	return fmt.Sprintf("%s - %s ft at %d kt",
		titlePhase(info.Phase),
		thousands(round(info.IndicatedAltitude)),
		round(physics.MsToKt(info.GroundSpeed)),
	)
}

// FormatWeatherData renders the wind or "Wind: Calm"
func FormatWeatherData(info SimInfo) string {
	if info.WindSpeed == 0 {
		return "Wind: Calm"
	}
	return fmt.Sprintf("Wind: %d° at %d kt", round(info.WindDirection), round(physics.MsToKt(info.WindSpeed)))
}

// FormatAirport renders an airport from either source's field names, e.g.
// "Toronto Pearson (CYYZ) | Toronto, Canada | Elevation: 569 ft | Runways: 5"
func FormatAirport(info AirportInfo) string {
	raw := RawSample(info)

	name := raw.String("airport_name", "name")
	if name == "" {
		name = "Unknown Airport"
	}
	icao := raw.String("icao_code", "ident")
	if icao == "" {
		icao = "N/A"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", name, icao)

	city := raw.String("city")
	country := raw.String("country_name", "country")
	if city != "" && country != "" {
		fmt.Fprintf(&sb, " | %s, %s", city, country)
	}

	if elevation := raw.String("elevation_ft", "elevation"); elevation != "" {
		fmt.Fprintf(&sb, " | Elevation: %s ft", elevation)
	}

	if runways, ok := info["runways"].([]any); ok && len(runways) > 0 {
		fmt.Fprintf(&sb, " | Runways: %d", len(runways))
	}

	return sb.String()
}
