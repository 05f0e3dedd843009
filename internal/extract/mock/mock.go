// Package mock provides a test double for extract.Backend.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/thoughtmap/internal/extract"
	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// ExtractCall records a single invocation of ExtractConcepts.
type ExtractCall struct {
	Text     string
	Existing []*concept.Node
}

// FollowupCall records a single invocation of GenerateFollowups.
type FollowupCall struct {
	Text    string
	Context string
}

// Backend is a mock implementation of extract.Backend. A zero Backend is not
// initialised; set Initialized or call Initialize.
type Backend struct {
	mu sync.Mutex

	// Initialized is reported by IsInitialized.
	Initialized bool

	// InitializeErr, if non-nil, is returned by Initialize.
	InitializeErr error

	// Concepts is returned by ExtractConcepts.
	Concepts []concept.Parsed

	// ExtractErr, if non-nil, is returned by ExtractConcepts.
	ExtractErr error

	// ExtractFunc, if set, overrides Concepts and ExtractErr.
	ExtractFunc func(ctx context.Context, text string) ([]concept.Parsed, error)

	// Followups is returned by GenerateFollowups.
	Followups []string

	// FollowupErr, if non-nil, is returned by GenerateFollowups.
	FollowupErr error

	// Call records.
	Credentials   []string
	ExtractCalls  []ExtractCall
	FollowupCalls []FollowupCall
	ResetCount    int
}

var _ extract.Backend = (*Backend)(nil)

// Initialize records the credential and marks the backend initialised unless
// InitializeErr is set.
func (b *Backend) Initialize(credential string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Credentials = append(b.Credentials, credential)
	if b.InitializeErr != nil {
		return b.InitializeErr
	}
	b.Initialized = true
	return nil
}

// IsInitialized returns Initialized.
func (b *Backend) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Initialized
}

// ExtractConcepts records the call and returns Concepts, ExtractErr.
func (b *Backend) ExtractConcepts(ctx context.Context, text string, existing []*concept.Node) ([]concept.Parsed, error) {
	b.mu.Lock()
	b.ExtractCalls = append(b.ExtractCalls, ExtractCall{Text: text, Existing: existing})
	fn, out, err := b.ExtractFunc, b.Concepts, b.ExtractErr
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, text)
	}
	return append([]concept.Parsed(nil), out...), err
}

// GenerateFollowups records the call and returns Followups, FollowupErr.
func (b *Backend) GenerateFollowups(_ context.Context, text, surrounding string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FollowupCalls = append(b.FollowupCalls, FollowupCall{Text: text, Context: surrounding})
	if b.FollowupErr != nil {
		return nil, b.FollowupErr
	}
	return append([]string(nil), b.Followups...), nil
}

// Reset marks the backend uninitialised.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Initialized = false
	b.ResetCount++
}

// ExtractCallCount returns the number of ExtractConcepts calls.
func (b *Backend) ExtractCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ExtractCalls)
}

// FollowupCallCount returns the number of GenerateFollowups calls.
func (b *Backend) FollowupCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.FollowupCalls)
}
