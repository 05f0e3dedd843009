// Package schedule buffers final transcript fragments and decides when the
// accumulated text is sent for concept extraction.
//
// Every appended fragment restarts a debounce timer. When the timer fires the
// controller checks its guards (empty buffer, buffer already processed,
// backend not initialised, extraction in flight) and, if they pass, runs one
// extraction over a snapshot of the buffer, builds a forest from the result
// and publishes it through [tree.Store.Replace].
package schedule

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/thoughtmap/internal/extract"
	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/internal/tree"
)

// DefaultDelay is the quiet period after the last fragment before an
// extraction fires.
const DefaultDelay = 10 * time.Second

// Observer is notified about extraction failures. Implementations must not
// block.
type Observer interface {
	OnExtractionError(err error)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(err error)

// OnExtractionError calls f(err).
func (f ObserverFunc) OnExtractionError(err error) { f(err) }

// Outcome describes what a single [Controller.Trigger] call did.
type Outcome struct {
	// Ran is true when at least one extraction was attempted.
	Ran bool `json:"ran"`

	// SkipReason is one of the observe.Skip* constants when Ran is false.
	SkipReason string `json:"skip_reason,omitempty"`

	// Concepts is the number of concepts published by the last successful run.
	Concepts int `json:"concepts"`
}

// Option configures a [Controller].
type Option func(*Controller)

// WithDelay sets the debounce delay. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithObserver registers an observer for extraction failures.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller owns the transcript buffer and the extraction schedule. All
// methods are safe for concurrent use.
type Controller struct {
	backend  extract.Backend
	store    *tree.Store
	clock    Clock
	observer Observer
	metrics  *observe.Metrics

	mu            sync.Mutex
	delay         time.Duration
	buffer        string
	lastProcessed string
	timer         Timer
	timerGen      uint64
	inFlight      bool
	rerun         bool
	stopped       bool
}

// New creates a Controller that extracts with backend and publishes into
// store.
func New(backend extract.Backend, store *tree.Store, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		store:   store,
		clock:   realClock{},
		delay:   DefaultDelay,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Append adds a final transcript fragment to the buffer, separated from the
// previous text by a single space, and restarts the debounce timer.
// Fragments that are empty after trimming are ignored and do not touch the
// timer.
func (c *Controller) Append(chunk string) {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffer == "" {
		c.buffer = chunk
	} else {
		c.buffer += " " + chunk
	}
	if c.stopped {
		return
	}
	c.scheduleLocked()
}

func (c *Controller) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.delay, func() { c.fire(gen) })
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.stopped {
		// Superseded by a later Append, or torn down.
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	_, _ = c.Trigger(context.Background())
}

// Trigger runs an extraction now if the guards pass. Skips are not errors:
// they return a zero error with Outcome.SkipReason set. When an extraction is
// already in flight the request is remembered and the guards are evaluated
// again once the running call completes, on the goroutine that owns it.
//
// The returned error is the last extraction failure, if any. It has already
// been reported to the observer.
func (c *Controller) Trigger(ctx context.Context) (Outcome, error) {
	log := observe.Logger(ctx)

	c.mu.Lock()
	if c.inFlight {
		c.rerun = true
		c.mu.Unlock()
		c.skip(ctx, log, observe.SkipInFlight)
		return Outcome{SkipReason: observe.SkipInFlight}, nil
	}
	text, reason := c.guardLocked()
	if reason != "" {
		c.mu.Unlock()
		c.skip(ctx, log, reason)
		return Outcome{SkipReason: reason}, nil
	}
	c.inFlight = true
	c.mu.Unlock()

	out := Outcome{Ran: true}
	var lastErr error
	for {
		n, err := c.run(ctx, text)
		lastErr = err
		if err == nil {
			out.Concepts = n
		}

		c.mu.Lock()
		if err == nil {
			c.lastProcessed = text
		}
		if !c.rerun {
			c.inFlight = false
			c.mu.Unlock()
			return out, lastErr
		}
		c.rerun = false
		text, reason = c.guardLocked()
		if reason != "" {
			c.inFlight = false
			c.mu.Unlock()
			c.skip(ctx, log, reason)
			return out, lastErr
		}
		c.mu.Unlock()
		log.Debug("schedule: rerunning extraction for text that arrived mid-call")
	}
}

// guardLocked returns the text to extract, or a skip reason.
func (c *Controller) guardLocked() (string, string) {
	switch {
	case c.buffer == "":
		return "", observe.SkipEmpty
	case c.buffer == c.lastProcessed:
		return "", observe.SkipUnchanged
	case !c.backend.IsInitialized():
		return "", observe.SkipNotInitialized
	}
	return c.buffer, ""
}

func (c *Controller) skip(ctx context.Context, log *slog.Logger, reason string) {
	c.metrics.RecordSkip(ctx, reason)
	log.Debug("schedule: extraction skipped", "reason", reason)
}

// run performs one extraction without holding the lock.
func (c *Controller) run(ctx context.Context, text string) (int, error) {
	existing := c.store.Snapshot().Forest
	parsed, err := c.backend.ExtractConcepts(ctx, text, existing)
	if err != nil {
		observe.Logger(ctx).Warn("schedule: extraction failed", "err", err, "transcript_len", len(text))
		if c.observer != nil {
			c.observer.OnExtractionError(err)
		}
		return 0, err
	}
	snap := c.store.Replace(tree.Build(parsed, c.clock.Now()))
	observe.Logger(ctx).Info("schedule: concept tree updated",
		"concepts", len(parsed),
		"version", snap.Version,
		"transcript_len", len(text),
	)
	return len(parsed), nil
}

// Stop cancels the pending timer. Later fragments are still buffered but no
// longer schedule extractions. An in-flight extraction is not cancelled.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// SetDelay changes the debounce delay for subsequent fragments.
func (c *Controller) SetDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.delay = d
	c.mu.Unlock()
}

// Delay returns the current debounce delay.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// Buffer returns the accumulated transcript.
func (c *Controller) Buffer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// LastProcessed returns the buffer content of the last successful extraction.
func (c *Controller) LastProcessed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProcessed
}

// Processing reports whether an extraction is in flight.
func (c *Controller) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Pending reports whether a debounce timer is armed.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}
