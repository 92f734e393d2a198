package telemetry

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MilestoneKind distinguishes the milestone families
type MilestoneKind string

const (
	MilestoneFlightLevel MilestoneKind = "flight_level"
	MilestoneWaypoint    MilestoneKind = "waypoint"
)

const (
	flightLevelPrefix = "FL"
	waypointPrefix    = "WP_"

	// flightLevelFloorFt is the lowest altitude announced as a flight level
	flightLevelFloorFt = 10000
)

// Milestone is a one-shot achievement
type Milestone struct {
	Key      string        `json:"key"`
	Kind     MilestoneKind `json:"kind"`
	Text     string        `json:"text"`
	Level    int           `json:"level,omitempty"`
	Waypoint string        `json:"waypoint,omitempty"`
}

// MilestoneRegistry remembers which milestone keys have fired. It is owned by
// the poll loop and is not safe for concurrent use.
type MilestoneRegistry struct {
	fired map[string]bool
}

// NewMilestoneRegistry creates an empty registry
func NewMilestoneRegistry() *MilestoneRegistry {
	return &MilestoneRegistry{fired: make(map[string]bool)}
}

// FlightLevel returns floor(altitude/1000)*10
func FlightLevel(altitudeFt float64) int {
	return int(math.Floor(altitudeFt/1000)) * 10
}

// Detect records and returns the milestones newly reached by s
func (r *MilestoneRegistry) Detect(s NormalizedState) []Milestone {
	var out []Milestone

	level := FlightLevel(s.AltitudeFt)
	if s.AltitudeFt >= flightLevelFloorFt {
		key := fmt.Sprintf("%s%d", flightLevelPrefix, level)
		if !r.fired[key] {
			r.fired[key] = true
			out = append(out, Milestone{
				Key:   key,
				Kind:  MilestoneFlightLevel,
				Text:  fmt.Sprintf("Reached flight level %d", level),
				Level: level,
			})
		}
	}

	// Re-arm every level above the current one
	for key := range r.fired {
		if n, ok := flightLevelOf(key); ok && n > level {
			delete(r.fired, key)
		}
	}

	if wp := s.NextWaypoint; wp != "" {
		key := waypointPrefix + wp
		if !r.fired[key] {
			r.fired[key] = true
			out = append(out, Milestone{
				Key:      key,
				Kind:     MilestoneWaypoint,
				Text:     "Approaching waypoint " + wp,
				Waypoint: wp,
			})
		}
	}

	return out
}

func flightLevelOf(key string) (int, bool) {
	if !strings.HasPrefix(key, flightLevelPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, flightLevelPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Fired reports whether key is currently marked as fired
func (r *MilestoneRegistry) Fired(key string) bool {
	return r.fired[key]
}

// Clear forgets a single key so it may fire again
func (r *MilestoneRegistry) Clear(key string) {
	delete(r.fired, key)
}

// Keys returns the fired keys in sorted order
func (r *MilestoneRegistry) Keys() []string {
	keys := make([]string, 0, len(r.fired))
	for k := range r.fired {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy
func (r *MilestoneRegistry) Clone() *MilestoneRegistry {
	c := NewMilestoneRegistry()
	for k, v := range r.fired {
		c.fired[k] = v
	}
	return c
}
