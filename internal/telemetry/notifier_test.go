package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yegors/navwatch/pkg/logger"
)

func testEvent() Event {
	return NewRawUpdateEvent(NormalizedState{Phase: PhaseCruise, Timestamp: testTime})
}

func TestNotifierIsolatesFailingListeners(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())
	defer n.Close()

	rec := &recorder{}
	n.Add("panics", ListenerFunc(func(context.Context, Event) error { panic("listener bug") }))
	n.Add("errors", ListenerFunc(func(context.Context, Event) error { return errors.New("nope") }))
	n.Add("recorder", rec)

	n.Notify(context.Background(), testEvent())
	n.Notify(context.Background(), testEvent())

	if got := len(rec.all()); got != 2 {
		t.Errorf("recorder got %d events, want 2", got)
	}
}

func TestNotifierBoundsSlowListener(t *testing.T) {
	n := NewNotifier(50*time.Millisecond, logger.NewNop())
	defer n.Close()

	release := make(chan struct{})
	defer close(release)
	n.Add("stuck", ListenerFunc(func(context.Context, Event) error {
		<-release // ignores its context
		return nil
	}))
	rec := &recorder{}
	n.Add("recorder", rec)

	start := time.Now()
	n.Notify(context.Background(), testEvent())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Notify blocked for %v on a stuck listener", elapsed)
	}
	if len(rec.all()) != 1 {
		t.Error("other listeners must still receive the event")
	}
}

func TestNotifierListenerContextHasDeadline(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())
	defer n.Close()

	var hadDeadline atomic.Bool
	n.Add("check", ListenerFunc(func(ctx context.Context, _ Event) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		return nil
	}))
	n.Notify(context.Background(), testEvent())
	if !hadDeadline.Load() {
		t.Error("listener context should carry the timeout")
	}
}

func TestNotifierRemove(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())
	defer n.Close()

	rec := &recorder{}
	id := n.Add("recorder", rec)
	if n.Len() != 1 {
		t.Fatalf("len = %d", n.Len())
	}
	if !n.Remove(id) {
		t.Fatal("Remove returned false for a registered listener")
	}
	if n.Remove(id) {
		t.Error("second Remove should report false")
	}

	n.Notify(context.Background(), testEvent())
	if len(rec.all()) != 0 {
		t.Error("removed listener received an event")
	}
}

func TestNotifierAsyncListener(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())

	got := make(chan Event, 4)
	n.AddAsync("async", ListenerFunc(func(_ context.Context, evt Event) error {
		got <- evt
		return nil
	}), 4)

	evt := testEvent()
	n.Notify(context.Background(), evt)

	select {
	case e := <-got:
		if e.ID != evt.ID {
			t.Errorf("got event %s, want %s", e.ID, evt.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async listener never received the event")
	}

	n.Close()
	n.Notify(context.Background(), testEvent())
	select {
	case e := <-got:
		t.Errorf("event %s delivered after Close", e.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifierSlowAsyncListenerDoesNotBlockNotify(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())
	defer n.Close()

	release := make(chan struct{})
	n.AddAsync("slow", ListenerFunc(func(ctx context.Context, _ Event) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}), 1)

	start := time.Now()
	for i := 0; i < 10; i++ {
		n.Notify(context.Background(), testEvent())
	}
	close(release)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Notify waited on an async listener for %v", elapsed)
	}
}

func TestNotifierNoDeliveryAfterClose(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())
	rec := &recorder{}
	n.Add("recorder", rec)

	n.Close()
	n.Close()
	n.Notify(context.Background(), testEvent())

	if len(rec.all()) != 0 {
		t.Error("event delivered after Close")
	}
}

func TestNotifierAddAsyncAfterClose(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())
	n.Close()

	rec := &recorder{}
	n.AddAsync("late", rec, 4)
	if n.Len() != 0 {
		t.Errorf("Len = %d after adding to a closed notifier", n.Len())
	}

	n.Notify(context.Background(), testEvent())
	n.Close()
	if len(rec.all()) != 0 {
		t.Error("event delivered to listener added after Close")
	}
}

func TestNotifierCloseWaitsForRunningListener(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())
	var done atomic.Bool
	n.Add("slow", ListenerFunc(func(context.Context, Event) error {
		time.Sleep(100 * time.Millisecond)
		done.Store(true)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	n.Notify(ctx, testEvent())
	n.Close()

	if !done.Load() {
		t.Error("Close returned while a listener was still running")
	}
}

func TestNotifierNoDeliveryOnCancelledContext(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNop())
	defer n.Close()
	rec := &recorder{}
	n.Add("recorder", rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, testEvent())

	if len(rec.all()) != 0 {
		t.Error("event delivered with a cancelled context")
	}
}
