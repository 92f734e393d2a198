package telemetry

import (
	"reflect"
	"testing"
)

func keysOf(ms []Milestone) []string {
	out := []string{}
	for _, m := range ms {
		out = append(out, m.Key)
	}
	return out
}

func TestFlightLevel(t *testing.T) {
	tests := map[float64]int{9999: 90, 10000: 100, 10999: 100, 35000: 350, 35999.9: 350}
	for alt, want := range tests {
		if got := FlightLevel(alt); got != want {
			t.Errorf("FlightLevel(%v) = %d, want %d", alt, got, want)
		}
	}
}

func TestFlightLevelMilestoneRearms(t *testing.T) {
	r := NewMilestoneRegistry()
	steps := []struct {
		alt  float64
		want []string
	}{
		{8000, []string{}},
		{9999, []string{}},
		{10000, []string{"FL100"}},
		{10500, []string{}},
		{11200, []string{"FL110"}},
		{10400, []string{}}, // FL110 re-armed, FL100 still held
		{9000, []string{}},  // below FL100, everything re-armed
		{10100, []string{"FL100"}},
		{11000, []string{"FL110"}},
	}
	for i, step := range steps {
		got := keysOf(r.Detect(NormalizedState{AltitudeFt: step.alt}))
		if !reflect.DeepEqual(got, step.want) {
			t.Errorf("step %d (alt %v): got %v, want %v", i, step.alt, got, step.want)
		}
	}
}

func TestFlightLevelMilestoneText(t *testing.T) {
	ms := NewMilestoneRegistry().Detect(NormalizedState{AltitudeFt: 35000})
	if len(ms) != 1 || ms[0].Text != "Reached flight level 350" || ms[0].Level != 350 || ms[0].Kind != MilestoneFlightLevel {
		t.Errorf("unexpected milestone %+v", ms)
	}
}

func TestWaypointMilestoneOncePerName(t *testing.T) {
	r := NewMilestoneRegistry()

	first := r.Detect(NormalizedState{NextWaypoint: "DIXON"})
	if len(first) != 1 || first[0].Key != "WP_DIXON" || first[0].Text != "Approaching waypoint DIXON" {
		t.Fatalf("unexpected %+v", first)
	}
	for i := 0; i < 3; i++ {
		if again := r.Detect(NormalizedState{NextWaypoint: "DIXON"}); len(again) != 0 {
			t.Fatalf("waypoint fired twice: %+v", again)
		}
	}

	next := r.Detect(NormalizedState{NextWaypoint: "LINNG"})
	if len(next) != 1 || next[0].Key != "WP_LINNG" {
		t.Errorf("new waypoint should fire, got %+v", next)
	}

	if !r.Fired("WP_DIXON") {
		t.Error("waypoint keys are not cleared automatically")
	}
	r.Clear("WP_DIXON")
	if got := r.Detect(NormalizedState{NextWaypoint: "DIXON"}); len(got) != 1 {
		t.Errorf("cleared waypoint should fire again, got %+v", got)
	}
}

func TestDetectBothFamiliesInOneCycle(t *testing.T) {
	r := NewMilestoneRegistry()
	got := keysOf(r.Detect(NormalizedState{AltitudeFt: 24000, NextWaypoint: "SUDBY"}))
	if !reflect.DeepEqual(got, []string{"FL240", "WP_SUDBY"}) {
		t.Errorf("got %v", got)
	}
	if !reflect.DeepEqual(r.Keys(), []string{"FL240", "WP_SUDBY"}) {
		t.Errorf("keys = %v", r.Keys())
	}
}

func TestRegistryClone(t *testing.T) {
	r := NewMilestoneRegistry()
	r.Detect(NormalizedState{AltitudeFt: 12000})

	c := r.Clone()
	c.Detect(NormalizedState{AltitudeFt: 5000})

	if !r.Fired("FL120") {
		t.Error("clone mutation leaked into the original")
	}
	if c.Fired("FL120") {
		t.Error("clone should have re-armed FL120")
	}
}
