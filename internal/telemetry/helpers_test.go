package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, e := range r.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// scriptedSource replays resolutions in order and then repeats the last one
type scriptedSource struct {
	mu      sync.Mutex
	results []Resolution
	calls   int
}

func (s *scriptedSource) Resolve(context.Context) Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return Resolution{}
	}
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i]
}

func sampleOf(t *testing.T, body string) Resolution {
	t.Helper()
	data, err := ParseObject([]byte(body))
	if err != nil {
		t.Fatalf("bad test body %q: %v", body, err)
	}
	return Resolution{
		Sample: &Sample{
			Data:     data,
			Body:     []byte(body),
			Endpoint: "/api/aircraft",
			Fetched:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Attempts: []Attempt{{Endpoint: "/api/aircraft"}},
	}
}

func unreachable() Resolution {
	return Resolution{Attempts: []Attempt{
		{Endpoint: "/api/aircraft", Err: context.DeadlineExceeded},
		{Endpoint: "/api/v1/flight", Err: context.DeadlineExceeded},
	}}
}
