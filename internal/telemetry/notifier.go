package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/navwatch/pkg/logger"
)

// DefaultListenerTimeout bounds one listener invocation
const DefaultListenerTimeout = 5 * time.Second

// DefaultAsyncBuffer is the queue depth of an async listener
const DefaultAsyncBuffer = 64

// Listener receives engine events. Returned errors are logged and otherwise ignored.
type Listener interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(ctx context.Context, evt Event) error

// HandleEvent calls f(ctx, evt)
func (f ListenerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// SubscriptionID identifies a registered listener
type SubscriptionID string

type subscription struct {
	id       SubscriptionID
	name     string
	listener Listener

	// async only
	queue  chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Notifier fans events out to registered listeners.
//
// Sync listeners for an event run concurrently and Notify waits for all of
// them, but each one is bounded by the listener timeout: a listener that
// overruns is logged and abandoned so the poll loop keeps its cadence.
// Async listeners get a queue and a worker goroutine owned by the notifier;
// Notify only enqueues for them and drops the event when the queue is full.
// Close waits for abandoned calls still running, up to the listener timeout.
type Notifier struct {
	mu       sync.RWMutex
	subs     []*subscription
	timeout  time.Duration
	closed   atomic.Bool
	workers  sync.WaitGroup
	inflight sync.WaitGroup
	logger   *logger.Logger
}

// NewNotifier creates a notifier; timeout <= 0 means DefaultListenerTimeout
func NewNotifier(timeout time.Duration, log *logger.Logger) *Notifier {
	if timeout <= 0 {
		timeout = DefaultListenerTimeout
	}
	return &Notifier{
		timeout: timeout,
		logger:  log.Named("notifier"),
	}
}

// Add registers a synchronous listener
func (n *Notifier) Add(name string, l Listener) SubscriptionID {
	sub := &subscription{
		id:       SubscriptionID(uuid.NewString()),
		name:     name,
		listener: l,
	}
	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()

	n.logger.Debug("Listener added", logger.String("name", name), logger.String("id", string(sub.id)))
	return sub.id
}

// AddAsync registers a listener that consumes events from its own queue
func (n *Notifier) AddAsync(name string, l Listener, buffer int) SubscriptionID {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:       SubscriptionID(uuid.NewString()),
		name:     name,
		listener: l,
		queue:    make(chan Event, buffer),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	n.mu.Lock()
	if n.closed.Load() {
		n.mu.Unlock()
		cancel()
		n.logger.Warn("Notifier closed, async listener not started", logger.String("name", name))
		return sub.id
	}
	n.workers.Add(1)
	go n.runWorker(ctx, sub)
	n.subs = append(n.subs, sub)
	n.mu.Unlock()

	n.logger.Debug("Async listener added", logger.String("name", name), logger.String("id", string(sub.id)))
	return sub.id
}

// Remove unregisters a listener. It reports whether the id was known.
func (n *Notifier) Remove(id SubscriptionID) bool {
	n.mu.Lock()
	var removed *subscription
	for i, sub := range n.subs {
		if sub.id == id {
			removed = sub
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			break
		}
	}
	n.mu.Unlock()

	if removed == nil {
		return false
	}
	if removed.cancel != nil {
		removed.cancel()
		<-removed.done
	}
	n.logger.Debug("Listener removed", logger.String("name", removed.name))
	return true
}

// Len returns the number of registered listeners
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Notify delivers evt to every listener. Nothing is delivered once ctx is done
// or the notifier is closed.
func (n *Notifier) Notify(ctx context.Context, evt Event) {
	if n.closed.Load() || ctx.Err() != nil {
		return
	}

	n.mu.RLock()
	subs := make([]*subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	var g errgroup.Group
	for _, sub := range subs {
		if sub.queue != nil {
			n.enqueue(sub, evt)
			continue
		}
		g.Go(func() error {
			n.invoke(ctx, sub, evt)
			return nil
		})
	}
	_ = g.Wait()
}

func (n *Notifier) enqueue(sub *subscription, evt Event) {
	select {
	case sub.queue <- evt:
	default:
		n.logger.Warn("Async listener queue full, dropping event",
			logger.String("listener", sub.name),
			logger.String("event_type", string(evt.Type)),
		)
	}
}

func (n *Notifier) runWorker(ctx context.Context, sub *subscription) {
	defer n.workers.Done()
	defer close(sub.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sub.queue:
			if n.closed.Load() || ctx.Err() != nil {
				return
			}
			n.invoke(ctx, sub, evt)
		}
	}
}

// invoke runs one listener call under the timeout, converting panics to errors
func (n *Notifier) invoke(ctx context.Context, sub *subscription, evt Event) {
	if n.closed.Load() || ctx.Err() != nil {
		return
	}

	// closed only flips under the write lock, so no Add races Close's Wait
	n.mu.RLock()
	if n.closed.Load() {
		n.mu.RUnlock()
		return
	}
	n.inflight.Add(1)
	n.mu.RUnlock()

	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer n.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("listener panic: %v", r)
			}
		}()
		result <- sub.listener.HandleEvent(callCtx, evt)
	}()

	select {
	case err := <-result:
		if err != nil {
			n.logger.Error("Listener error",
				logger.String("listener", sub.name),
				logger.String("event_type", string(evt.Type)),
				logger.Error(err),
			)
		}
	case <-callCtx.Done():
		n.logger.Warn("Listener did not finish in time",
			logger.String("listener", sub.name),
			logger.String("event_type", string(evt.Type)),
			logger.Duration("timeout", n.timeout),
		)
	}
}

// Close stops delivery, waits for async workers to exit and for listener
// calls still in flight, the latter bounded by the listener timeout.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed.Swap(true) {
		n.mu.Unlock()
		return
	}
	for _, sub := range n.subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	n.mu.Unlock()
	n.workers.Wait()

	drained := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(drained)
	}()

	t := time.NewTimer(n.timeout)
	defer t.Stop()
	select {
	case <-drained:
	case <-t.C:
		n.logger.Warn("Listeners still running after close",
			logger.Duration("timeout", n.timeout))
	}
}
