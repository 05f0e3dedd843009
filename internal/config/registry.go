package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
	"github.com/MrWong99/thoughtmap/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned when a config names a provider that
// no factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config block.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one provider kind's name table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

func (f *factories[T]) names() []string {
	return slices.Sorted(maps.Keys(f.m))
}

// Registry maps the provider names used in config files to constructors for
// the extraction LLMs and the speech recognisers. It is safe for concurrent
// use.
type Registry struct {
	mu  sync.RWMutex
	llm factories[llm.Provider]
	stt factories[stt.Provider]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: factories[llm.Provider]{kind: "llm", m: map[string]Factory[llm.Provider]{}},
		stt: factories[stt.Provider]{kind: "stt", m: map[string]Factory[stt.Provider]{}},
	}
}

// RegisterLLM registers an LLM factory under name, replacing any previous one.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = f
}

// RegisterSTT registers a speech-to-text factory under name.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// CreateLLM builds the LLM named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateSTT builds the recogniser named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// LLMNames returns the registered LLM names, sorted.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.names()
}

// STTNames returns the registered recogniser names, sorted.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.names()
}

// Check reports every provider in p whose name has no factory. An empty STT
// name means recording is disabled and is not an error.
func (r *Registry) Check(p ProvidersConfig) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	entries := append([]ProviderEntry{p.LLM}, p.LLMFallbacks...)
	for _, e := range entries {
		if _, ok := r.llm.m[e.Name]; !ok {
			errs = append(errs, fmt.Errorf("%w: llm/%q (known: %v)", ErrProviderNotRegistered, e.Name, r.llm.names()))
		}
	}
	if p.STT.Name != "" {
		if _, ok := r.stt.m[p.STT.Name]; !ok {
			errs = append(errs, fmt.Errorf("%w: stt/%q (known: %v)", ErrProviderNotRegistered, p.STT.Name, r.stt.names()))
		}
	}
	return errors.Join(errs...)
}
