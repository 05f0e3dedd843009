// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local chat completion API (OpenAI, any
// provider reachable through any-llm-go such as Anthropic or a local Ollama
// instance) and exposes the single blocking completion call thoughtmap needs to
// extract concepts and generate follow-up questions.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Errors that providers wrap around backend failures they can classify.
var (
	// ErrUnauthorized means the backend rejected the API key.
	ErrUnauthorized = errors.New("llm: credential rejected")

	// ErrRateLimited means the backend asked the caller to slow down.
	ErrRateLimited = errors.New("llm: rate limited")
)

// ClassifyStatus wraps err with [ErrUnauthorized] or [ErrRateLimited] when the
// HTTP status code calls for it and returns err unchanged otherwise.
func ClassifyStatus(status int, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional instruction injected before Messages as a
	// "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// means provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier requests are sent to.
	Model() string
}
