package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType tags the Event variant
type EventType string

const (
	EventRawUpdate   EventType = "raw_update"
	EventPhaseChange EventType = "phase_change"
	EventMilestone   EventType = "milestone"
)

// Event is delivered to listeners by value. Only the fields of its Type are set.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// phase_change
	OldPhase Phase `json:"old_phase,omitempty"`
	NewPhase Phase `json:"new_phase,omitempty"`

	// milestone
	Milestone Milestone `json:"milestone,omitzero"`

	Snapshot NormalizedState `json:"snapshot"`
}

func newEvent(t EventType, snap NormalizedState) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: snap.Timestamp,
		Snapshot:  snap,
	}
}

// NewRawUpdateEvent wraps a freshly accepted snapshot
func NewRawUpdateEvent(snap NormalizedState) Event {
	return newEvent(EventRawUpdate, snap)
}

// NewPhaseChangeEvent records a transition; from is empty for the first phase
func NewPhaseChangeEvent(from, to Phase, snap NormalizedState) Event {
	e := newEvent(EventPhaseChange, snap)
	e.OldPhase = from
	e.NewPhase = to
	return e
}

// NewMilestoneEvent wraps a milestone
func NewMilestoneEvent(m Milestone, snap NormalizedState) Event {
	e := newEvent(EventMilestone, snap)
	e.Milestone = m
	return e
}

// Text is a human readable summary of the event
func (e Event) Text() string {
	switch e.Type {
	case EventPhaseChange:
		if e.OldPhase == "" {
			return fmt.Sprintf("Flight phase: %s", e.NewPhase)
		}
		return fmt.Sprintf("Flight phase changed: %s → %s", e.OldPhase, e.NewPhase)
	case EventMilestone:
		return e.Milestone.Text
	}
	return fmt.Sprintf("Telemetry update: %s", e.Snapshot.Phase)
}
