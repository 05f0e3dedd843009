package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
	llmmock "github.com/MrWong99/thoughtmap/pkg/provider/llm/mock"
)

func newLLMFallback(primary, secondary *llmmock.Provider) *LLMFallback {
	fb := NewLLMFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("ollama", secondary)
	return fb
}

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "- 学習"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "- local"}}

	resp, err := newLLMFallback(primary, secondary).Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "- 学習" {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 0 {
		t.Fatalf("calls primary=%d secondary=%d, want 1/0", len(primary.Calls()), len(secondary.Calls()))
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "- local"}}

	resp, err := newLLMFallback(primary, secondary).Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "- local" {
		t.Fatalf("content = %q, want fallback content", resp.Content)
	}
}

func TestLLMFallback_LastServed(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "- local"}}
	fb := newLLMFallback(primary, secondary)

	if got := fb.LastServed(); got != "" {
		t.Fatalf("LastServed before any call = %q, want empty", got)
	}
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := fb.LastServed(); got != "ollama" {
		t.Errorf("LastServed = %q, want ollama", got)
	}

	primary.CompleteErr = nil
	primary.CompleteResponse = &llm.CompletionResponse{Content: "- 学習"}
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := fb.LastServed(); got != "openai" {
		t.Errorf("LastServed after recovery = %q, want openai", got)
	}
}

func TestLLMFallback_AllFailKeepsLastServed(t *testing.T) {
	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "- 学習"}}
	secondary := &llmmock.Provider{CompleteErr: errors.New("down")}
	fb := newLLMFallback(primary, secondary)
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	primary.CompleteErr = errors.New("down")
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if got := fb.LastServed(); got != "openai" {
		t.Errorf("LastServed = %q, want openai", got)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{CompleteErr: errors.New("secondary down")}

	_, err := newLLMFallback(primary, secondary).Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_ModelAndStatus(t *testing.T) {
	fb := newLLMFallback(&llmmock.Provider{ModelName: "gpt-3.5-turbo"}, &llmmock.Provider{ModelName: "llama3.2"})
	if fb.Model() != "gpt-3.5-turbo" {
		t.Errorf("Model() = %q, want primary model", fb.Model())
	}
	status := fb.Status()
	if len(status) != 2 || status[0].Name != "openai" || status[1].Name != "ollama" {
		t.Errorf("status = %+v", status)
	}
}
