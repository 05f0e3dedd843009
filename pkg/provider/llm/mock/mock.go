// Package mock provides a scripted [llm.Provider] for tests.
//
//	p := &mock.Provider{Replies: []string{"- 学習\n  - 記憶", "1. なぜ?"}}
//
// Each Complete call consumes the next reply; once the script runs out the
// fixed CompleteResponse is used.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock [llm.Provider]. With every field zero, Complete returns
// (nil, nil).
type Provider struct {
	mu sync.Mutex

	// ModelName is returned by Model.
	ModelName string

	// Replies is consumed front to back, one reply per call.
	Replies []string

	// CompleteResponse is returned once Replies is exhausted.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, fails every call before Replies is consulted.
	CompleteErr error

	// CompleteFunc, if set, replaces all of the above.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted result.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	if fn == nil {
		defer p.mu.Unlock()
		switch {
		case p.CompleteErr != nil:
			return nil, p.CompleteErr
		case len(p.Replies) > 0:
			reply := p.Replies[0]
			p.Replies = p.Replies[1:]
			return &llm.CompletionResponse{Content: reply}, nil
		}
		return p.CompleteResponse, nil
	}
	p.mu.Unlock()
	return fn(ctx, req)
}

// Model returns ModelName.
func (p *Provider) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelName
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.CompleteCalls...)
}

// Prompts returns the last user message of every recorded call, which is where
// the transcript or the selected concept ends up.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.CompleteCalls))
	for _, c := range p.CompleteCalls {
		var last string
		for _, m := range c.Req.Messages {
			if m.Role == "user" {
				last = m.Content
			}
		}
		out = append(out, last)
	}
	return out
}

// Reset clears the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
