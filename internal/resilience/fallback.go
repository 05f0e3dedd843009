package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open circuit breaker. The last entry's error is wrapped alongside it.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the circuit breaker created for each entry of a
// [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// EntryStatus describes one entry of a [FallbackGroup].
type EntryStatus struct {
	Name  string `json:"name"`
	State State  `json:"state"`
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallbacks of the same
// provider type. Entries are tried in registration order; entries whose
// breaker is open are skipped.
type FallbackGroup[T any] struct {
	cfg FallbackConfig

	mu      sync.RWMutex
	entries []*fallbackEntry[T]
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all previously added ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.entries = append(fg.entries, &fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Primary returns the first entry's value.
func (fg *FallbackGroup[T]) Primary() T {
	fg.mu.RLock()
	defer fg.mu.RUnlock()
	return fg.entries[0].value
}

// Status reports the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	fg.mu.RLock()
	defer fg.mu.RUnlock()
	out := make([]EntryStatus, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = EntryStatus{Name: e.name, State: e.breaker.State()}
	}
	return out
}

func (fg *FallbackGroup[T]) snapshot() []*fallbackEntry[T] {
	fg.mu.RLock()
	defer fg.mu.RUnlock()
	return append([]*fallbackEntry[T](nil), fg.entries...)
}

// ExecuteWithResult calls fn with each entry until one succeeds. A context
// cancellation error stops the walk immediately and is returned as-is. This is
// a function rather than a method because methods cannot declare type
// parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	r, _, err := executeNamed(fg, fn)
	return r, err
}

// executeNamed is [ExecuteWithResult] that also reports which entry served.
func executeNamed[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	for _, entry := range fg.snapshot() {
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, entry.name, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, "", err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping provider, circuit open", "provider", entry.name)
		} else {
			slog.Warn("resilience: provider failed, trying next", "provider", entry.name, "err", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
