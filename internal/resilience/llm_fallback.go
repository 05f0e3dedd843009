package resilience

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] over an ordered set of LLM backends,
// each guarded by its own circuit breaker. The first backend is the primary.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]

	mu         sync.Mutex
	lastServed string
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers a backend tried after the existing ones.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first backend whose breaker admits it.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, name, err := executeNamed(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	changed := f.lastServed != name
	f.lastServed = name
	f.mu.Unlock()
	if changed {
		slog.Info("resilience: llm backend switched", "served_by", name)
	}
	return resp, nil
}

// Model returns the primary backend's model.
func (f *LLMFallback) Model() string {
	return f.group.Primary().Model()
}

// LastServed names the backend that answered the most recent successful
// call, or "" before the first one.
func (f *LLMFallback) LastServed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastServed
}

// Status reports the breaker state of every backend.
func (f *LLMFallback) Status() []EntryStatus {
	return f.group.Status()
}
