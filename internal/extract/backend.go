// Package extract turns transcript text into concept records through an LLM.
//
// [ParseConcepts] and [ParseFollowups] interpret the model's semi-structured
// replies. [LLMBackend] owns the provider lifecycle (initialise from a
// credential, reset) and builds the prompts.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/internal/resilience"
	"github.com/MrWong99/thoughtmap/pkg/concept"
	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
)

// ErrNotInitialized is returned by backend calls made before Initialize.
var ErrNotInitialized = errors.New("extract: backend not initialized")

// Backend is the extraction capability used by the scheduler and the
// selection controller.
type Backend interface {
	// Initialize configures the backend with a credential. It may be called
	// again to replace the credential.
	Initialize(credential string) error

	// IsInitialized reports whether a credential has been accepted.
	IsInitialized() bool

	// ExtractConcepts asks the model for a concept outline of text. existing
	// is the current forest, passed as context for continuity.
	ExtractConcepts(ctx context.Context, text string, existing []*concept.Node) ([]concept.Parsed, error)

	// GenerateFollowups asks for questions about a single concept.
	GenerateFollowups(ctx context.Context, text, surrounding string) ([]string, error)

	// Reset drops the credential and returns to the uninitialised state.
	Reset()
}

// Factory builds the primary provider from a credential.
type Factory func(credential string) (llm.Provider, error)

// Settings tune the prompts and sampling parameters.
type Settings struct {
	Language            Language
	ConceptTemperature  float64
	ConceptMaxTokens    int
	FollowupTemperature float64
	FollowupMaxTokens   int
}

// DefaultSettings mirrors the parameters the concept map was tuned with.
func DefaultSettings() Settings {
	return Settings{
		Language:            Japanese,
		ConceptTemperature:  0.3,
		ConceptMaxTokens:    500,
		FollowupTemperature: 0.7,
		FollowupMaxTokens:   300,
	}
}

type namedProvider struct {
	name     string
	provider llm.Provider
}

// Option configures an [LLMBackend].
type Option func(*LLMBackend)

// WithSettings replaces [DefaultSettings].
func WithSettings(s Settings) Option {
	return func(b *LLMBackend) { b.settings = s }
}

// WithFallback registers a provider tried when the primary fails. Fallbacks
// are only used once the backend has been initialised.
func WithFallback(name string, p llm.Provider) Option {
	return func(b *LLMBackend) {
		b.fallbacks = append(b.fallbacks, namedProvider{name: name, provider: p})
	}
}

// WithCircuitBreaker tunes the breaker placed in front of every provider.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(b *LLMBackend) { b.breaker = cfg }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *LLMBackend) { b.metrics = m }
}

// WithGeneration overrides the generation key minted for each parse. Tests
// use it for deterministic ids.
func WithGeneration(fn func() string) Option {
	return func(b *LLMBackend) { b.generation = fn }
}

// LLMBackend implements [Backend] on top of an [llm.Provider].
type LLMBackend struct {
	factory    Factory
	fallbacks  []namedProvider
	breaker    resilience.CircuitBreakerConfig
	metrics    *observe.Metrics
	generation func() string

	mu       sync.RWMutex
	provider *resilience.LLMFallback
	settings Settings
}

var _ Backend = (*LLMBackend)(nil)

// NewLLMBackend creates an uninitialised backend.
func NewLLMBackend(factory Factory, opts ...Option) *LLMBackend {
	b := &LLMBackend{
		factory:    factory,
		settings:   DefaultSettings(),
		generation: newGeneration,
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// newGeneration mints a time-ordered unique key (UUIDv7).
func newGeneration() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Initialize implements [Backend].
func (b *LLMBackend) Initialize(credential string) error {
	primary, err := b.factory(credential)
	if err != nil {
		return fmt.Errorf("extract: initialize: %w", err)
	}
	fb := resilience.NewLLMFallback(primary, "primary", resilience.FallbackConfig{CircuitBreaker: b.breaker})
	for _, f := range b.fallbacks {
		fb.AddFallback(f.name, f.provider)
	}

	b.mu.Lock()
	b.provider = fb
	b.mu.Unlock()
	return nil
}

// IsInitialized implements [Backend].
func (b *LLMBackend) IsInitialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.provider != nil
}

// Reset implements [Backend].
func (b *LLMBackend) Reset() {
	b.mu.Lock()
	b.provider = nil
	b.mu.Unlock()
}

// Settings returns the current settings.
func (b *LLMBackend) Settings() Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// SetLanguage switches the prompt set for subsequent calls.
func (b *LLMBackend) SetLanguage(l Language) {
	b.mu.Lock()
	b.settings.Language = l
	b.mu.Unlock()
}

// Status reports the breaker state of every configured provider. Nil when
// not initialised.
func (b *LLMBackend) Status() []resilience.EntryStatus {
	b.mu.RLock()
	p := b.provider
	b.mu.RUnlock()
	if p == nil {
		return nil
	}
	return p.Status()
}

func (b *LLMBackend) current() (*resilience.LLMFallback, Settings, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.provider == nil {
		return nil, b.settings, ErrNotInitialized
	}
	return b.provider, b.settings, nil
}

// ExtractRaw returns the model's unparsed outline for text.
func (b *LLMBackend) ExtractRaw(ctx context.Context, text string, existing []*concept.Node) (string, error) {
	p, s, err := b.current()
	if err != nil {
		return "", err
	}
	system, user := conceptPrompt(s.Language, text, existing)
	return b.complete(ctx, p, observe.KindConcepts, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
		Temperature:  s.ConceptTemperature,
		MaxTokens:    s.ConceptMaxTokens,
	})
}

// ExtractConcepts implements [Backend].
func (b *LLMBackend) ExtractConcepts(ctx context.Context, text string, existing []*concept.Node) ([]concept.Parsed, error) {
	raw, err := b.ExtractRaw(ctx, text, existing)
	if err != nil {
		return nil, err
	}
	return ParseConcepts(raw, b.generation()), nil
}

// GenerateFollowups implements [Backend].
func (b *LLMBackend) GenerateFollowups(ctx context.Context, text, surrounding string) ([]string, error) {
	p, s, err := b.current()
	if err != nil {
		return nil, err
	}
	system, user := followupPrompt(s.Language, text, surrounding)
	raw, err := b.complete(ctx, p, observe.KindFollowups, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
		Temperature:  s.FollowupTemperature,
		MaxTokens:    s.FollowupMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return ParseFollowups(raw), nil
}

func (b *LLMBackend) complete(ctx context.Context, p llm.Provider, kind string, req llm.CompletionRequest) (content string, err error) {
	ctx, span := observe.StartLLMSpan(ctx, kind, p.Model())
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	resp, err := p.Complete(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	b.metrics.RecordExtraction(ctx, kind, time.Since(start).Seconds(), err)
	if err != nil {
		return "", fmt.Errorf("extract: %s: %w", kind, err)
	}

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	observe.Logger(ctx).Debug("extraction call completed",
		"kind", kind,
		"model", p.Model(),
		"duration", time.Since(start),
		"total_tokens", resp.Usage.TotalTokens)
	return resp.Content, nil
}
