package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
)

func TestChatParams(t *testing.T) {
	t.Parallel()

	params, err := chatParams("gpt-3.5-turbo", llm.CompletionRequest{
		SystemPrompt: "extract concepts",
		Messages: []llm.Message{
			{Role: "user", Content: "今日は学習について"},
			{Role: "assistant", Content: "- 学習"},
			{Role: "user", Content: "続けて"},
		},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("expected system + 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil || params.Messages[1].OfUser == nil || params.Messages[2].OfAssistant == nil {
		t.Error("messages are not in system, user, assistant order")
	}
	if string(params.Model) != "gpt-3.5-turbo" {
		t.Errorf("model = %q", params.Model)
	}
	if params.Temperature.Value != 0.3 || params.MaxTokens.Value != 500 {
		t.Errorf("temperature=%v max_tokens=%v", params.Temperature.Value, params.MaxTokens.Value)
	}
}

func TestChatParams_Errors(t *testing.T) {
	t.Parallel()
	if _, err := chatParams("gpt-4o", llm.CompletionRequest{SystemPrompt: "x"}); err == nil {
		t.Error("expected error for empty message list")
	}
	if _, err := chatParams("gpt-4o", llm.CompletionRequest{Messages: []llm.Message{{Role: "tool"}}}); err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

// fakeServer answers chat completions with status and, on 200, a single
// choice containing content.
func fakeServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "nope", "type": "invalid_request_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t, http.StatusOK, "- 学習\n  - 記憶")
	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"), WithOrganization("org-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "学習と記憶"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "- 学習\n  - 記憶" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 17 || resp.Usage.PromptTokens != 12 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestComplete_ClassifiesStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, llm.ErrUnauthorized},
		{http.StatusTooManyRequests, llm.ErrRateLimited},
		{http.StatusBadRequest, nil},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()
			srv := fakeServer(t, tc.status, "")
			p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = p.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{{Role: "user", Content: "x"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			for _, sentinel := range []error{llm.ErrUnauthorized, llm.ErrRateLimited} {
				if got := errors.Is(err, sentinel); got != (sentinel == tc.want) {
					t.Errorf("errors.Is(%v, %v) = %v", err, sentinel, got)
				}
			}
		})
	}
}
