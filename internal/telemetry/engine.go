package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/navwatch/pkg/logger"
)

// State is the externally visible poll scheduler state
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	}
	return "stopped"
}

var (
	// ErrAlreadyStarted is returned by Start on a running engine
	ErrAlreadyStarted = errors.New("telemetry engine already started")
	// ErrEngineClosed is returned by Start after Stop
	ErrEngineClosed = errors.New("telemetry engine stopped")
)

// Options tunes the poll scheduler
type Options struct {
	PollInterval         time.Duration
	ErrorBackoff         time.Duration
	MaxConsecutiveErrors int
	ExtendedBackoff      time.Duration
	ListenerTimeout      time.Duration

	// SkipUnchanged skips downstream work when the response body is
	// byte-for-byte identical to the previous one
	SkipUnchanged bool
}

// DefaultOptions returns the standard cadence and backoff settings
func DefaultOptions() Options {
	return Options{
		PollInterval:         time.Second,
		ErrorBackoff:         5 * time.Second,
		MaxConsecutiveErrors: 5,
		ExtendedBackoff:      30 * time.Second,
		ListenerTimeout:      DefaultListenerTimeout,
		SkipUnchanged:        true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = d.ErrorBackoff
	}
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = d.MaxConsecutiveErrors
	}
	if o.ExtendedBackoff <= 0 {
		o.ExtendedBackoff = d.ExtendedBackoff
	}
	if o.ListenerTimeout <= 0 {
		o.ListenerTimeout = d.ListenerTimeout
	}
	return o
}

// Status is a point-in-time view of the scheduler for health reporting
type Status struct {
	State             string    `json:"state"`
	Cycles            uint64    `json:"cycles"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastSampleAt      time.Time `json:"last_sample_at,omitzero"`
	LastEndpoint      string    `json:"last_endpoint,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	Listeners         int       `json:"listeners"`
	HasData           bool      `json:"has_data"`
}

// Engine owns the fetch-normalize-classify-detect loop and the state it derives.
// All writes happen on the loop goroutine; readers see whole snapshots only.
type Engine struct {
	source   Source
	notifier *Notifier
	opts     Options
	logger   *logger.Logger

	snapshot atomic.Pointer[NormalizedState]
	phase    atomic.Pointer[PhaseState]
	state    atomic.Int32

	// loop-owned
	milestones        *MilestoneRegistry
	lastBody          []byte
	consecutiveErrors int

	statusMu sync.RWMutex
	status   Status

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	closed      bool
	wg          sync.WaitGroup

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewEngine creates a stopped engine reading from source
func NewEngine(source Source, opts Options, log *logger.Logger) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		source:     source,
		notifier:   NewNotifier(opts.ListenerTimeout, log),
		opts:       opts,
		logger:     log.Named("engine"),
		milestones: NewMilestoneRegistry(),
		sleep:      sleepContext,
	}
	e.phase.Store(&PhaseState{})
	return e
}

// Start launches the poll loop
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	e.logger.Info("Starting telemetry engine",
		logger.Duration("poll_interval", e.opts.PollInterval),
		logger.Bool("skip_unchanged", e.opts.SkipUnchanged),
	)

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.setState(StateRunning)

	e.wg.Add(1)
	go e.pollLoop(loopCtx)
	return nil
}

// Stop cancels the loop, waits for it to exit and releases network resources.
// It is safe to call at any time and more than once. No event is delivered
// after Stop returns.
func (e *Engine) Stop() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	e.logger.Info("Stopping telemetry engine")
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.notifier.Close()

	if c, ok := e.source.(interface{ Close() }); ok {
		c.Close()
	}
	e.setState(StateStopped)
	e.logger.Info("Telemetry engine stopped")
}

// AddListener registers a synchronous listener
func (e *Engine) AddListener(name string, l Listener) SubscriptionID {
	return e.notifier.Add(name, l)
}

// AddAsyncListener registers a queued listener; buffer <= 0 uses DefaultAsyncBuffer
func (e *Engine) AddAsyncListener(name string, l Listener, buffer int) SubscriptionID {
	return e.notifier.AddAsync(name, l, buffer)
}

// RemoveListener unregisters a listener
func (e *Engine) RemoveListener(id SubscriptionID) bool {
	return e.notifier.Remove(id)
}

// Snapshot returns the current normalized state, if any sample was accepted yet
func (e *Engine) Snapshot() (NormalizedState, bool) {
	s := e.snapshot.Load()
	if s == nil {
		return NormalizedState{}, false
	}
	return *s, true
}

// PhaseState returns the current and previous phase
func (e *Engine) PhaseState() PhaseState {
	return *e.phase.Load()
}

// State returns the scheduler state
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Status returns a copy of the scheduler counters
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	st := e.status
	e.statusMu.RUnlock()

	st.State = e.State().String()
	st.Listeners = e.notifier.Len()
	st.HasData = e.snapshot.Load() != nil
	return st
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		err := e.pollOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := e.nextDelay(err)
		if !e.sleep(ctx, wait) {
			return
		}
	}
}

// nextDelay updates the error counter and returns how long to wait
func (e *Engine) nextDelay(err error) time.Duration {
	if err == nil {
		e.consecutiveErrors = 0
		e.setState(StateRunning)
		e.updateStatus(func(st *Status) { st.ConsecutiveErrors = 0 })
		return e.opts.PollInterval
	}

	e.consecutiveErrors++
	e.logger.Warn("Telemetry poll failed",
		logger.Int("consecutive_errors", e.consecutiveErrors),
		logger.Error(err),
	)
	count := e.consecutiveErrors
	e.updateStatus(func(st *Status) {
		st.ConsecutiveErrors = count
		st.LastError = err.Error()
	})
	e.setState(StateBackoff)

	if e.consecutiveErrors >= e.opts.MaxConsecutiveErrors {
		e.logger.Error("Too many consecutive telemetry errors, backing off",
			logger.Int("max_errors", e.opts.MaxConsecutiveErrors),
			logger.Duration("backoff", e.opts.ExtendedBackoff),
		)
		e.consecutiveErrors = 0
		return e.opts.ExtendedBackoff
	}
	return e.opts.ErrorBackoff
}

// pollOnce runs one cycle. Only a fetch stage where every endpoint failed,
// or a panic, counts as an error.
func (e *Engine) pollOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panic: %v", r)
		}
	}()

	res := e.source.Resolve(ctx)
	e.updateStatus(func(st *Status) { st.Cycles++ })

	if res.Sample == nil {
		if res.Unreachable() {
			return fmt.Errorf("telemetry source unreachable: %w", res.Err())
		}
		e.logger.Debug("No telemetry data received")
		return nil
	}

	if e.opts.SkipUnchanged && e.lastBody != nil && bytes.Equal(res.Sample.Body, e.lastBody) {
		e.logger.Debug("Telemetry unchanged, skipping", logger.String("endpoint", res.Sample.Endpoint))
		return nil
	}

	e.process(ctx, res.Sample)
	return nil
}

// process derives and commits the new state, then notifies listeners
func (e *Engine) process(ctx context.Context, sample *Sample) {
	prev := e.snapshot.Load()
	snap := Normalize(sample.Data, prev, sample.Fetched)
	snap.Endpoint = sample.Endpoint
	snap.Phase = Classify(sample.Data, snap)

	registry := e.milestones.Clone()
	reached := registry.Detect(snap)

	old := e.PhaseState().Current
	changed := snap.Phase != old

	// commit
	e.milestones = registry
	e.lastBody = sample.Body
	e.snapshot.Store(&snap)
	if changed {
		e.phase.Store(&PhaseState{Current: snap.Phase, Previous: old})
	}
	e.updateStatus(func(st *Status) {
		st.LastSampleAt = sample.Fetched
		st.LastEndpoint = sample.Endpoint
	})

	e.notifier.Notify(ctx, NewRawUpdateEvent(snap))

	if changed {
		e.logger.Info("Flight phase changed",
			logger.String("from", string(old)),
			logger.String("to", string(snap.Phase)),
		)
		e.notifier.Notify(ctx, NewPhaseChangeEvent(old, snap.Phase, snap))
	}

	for _, m := range reached {
		e.logger.Info("Milestone reached", logger.String("key", m.Key), logger.String("text", m.Text))
		e.notifier.Notify(ctx, NewMilestoneEvent(m, snap))
	}
}

func (e *Engine) updateStatus(fn func(st *Status)) {
	e.statusMu.Lock()
	fn(&e.status)
	e.statusMu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
