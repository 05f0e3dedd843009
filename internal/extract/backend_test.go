package extract

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/pkg/concept"
	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
	llmmock "github.com/MrWong99/thoughtmap/pkg/provider/llm/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestBackend(t *testing.T, p llm.Provider, opts ...Option) (*LLMBackend, *[]string) {
	t.Helper()
	var creds []string
	factory := func(cred string) (llm.Provider, error) {
		creds = append(creds, cred)
		return p, nil
	}
	opts = append([]Option{
		WithMetrics(testMetrics(t)),
		WithGeneration(func() string { return "gen" }),
	}, opts...)
	return NewLLMBackend(factory, opts...), &creds
}

func TestLLMBackend_NotInitialized(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t, &llmmock.Provider{})
	if b.IsInitialized() {
		t.Fatal("new backend should not be initialized")
	}
	if _, err := b.ExtractConcepts(context.Background(), "x", nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ExtractConcepts err = %v, want ErrNotInitialized", err)
	}
	if _, err := b.GenerateFollowups(context.Background(), "x", ""); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("GenerateFollowups err = %v, want ErrNotInitialized", err)
	}
	if b.Status() != nil {
		t.Error("Status should be nil before Initialize")
	}
}

func TestLLMBackend_InitializeAndReset(t *testing.T) {
	t.Parallel()
	b, creds := newTestBackend(t, &llmmock.Provider{ModelName: "gpt-3.5-turbo"})
	if err := b.Initialize("sk-abcdefghijklmnopqrstuvwxyz"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !b.IsInitialized() || len(*creds) != 1 {
		t.Fatal("expected backend initialized through the factory")
	}
	if st := b.Status(); len(st) != 1 || st[0].Name != "primary" {
		t.Errorf("status = %+v", st)
	}
	b.Reset()
	if b.IsInitialized() {
		t.Fatal("Reset should uninitialize the backend")
	}
}

func TestLLMBackend_InitializeFactoryError(t *testing.T) {
	t.Parallel()
	boom := errors.New("bad key")
	b := NewLLMBackend(func(string) (llm.Provider, error) { return nil, boom }, WithMetrics(testMetrics(t)))
	if err := b.Initialize("x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped factory error", err)
	}
	if b.IsInitialized() {
		t.Fatal("failed Initialize must leave the backend uninitialized")
	}
}

func TestLLMBackend_ExtractConcepts(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "- 思考\n  - 学習 [関係: の詳細]"}}
	b, _ := newTestBackend(t, p)
	if err := b.Initialize("key"); err != nil {
		t.Fatal(err)
	}

	existing := []*concept.Node{{ID: "old", Text: "記憶"}}
	got, err := b.ExtractConcepts(context.Background(), "思考と学習", existing)
	if err != nil {
		t.Fatalf("ExtractConcepts: %v", err)
	}
	want := []concept.Parsed{
		{ID: "concept-gen-0", Text: "思考", Level: 0},
		{ID: "concept-gen-1", Text: "学習", Level: 1, RelationLabel: "の詳細"},
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0.3 || req.MaxTokens != 500 {
		t.Errorf("sampling = %v/%d, want 0.3/500", req.Temperature, req.MaxTokens)
	}
	if req.SystemPrompt == "" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("unexpected request shape: %+v", req)
	}
}

func TestLLMBackend_GenerateFollowups(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "1. 何を学びましたか？\n2. なぜ重要？\n3. 次は？"}}
	b, _ := newTestBackend(t, p, WithSettings(Settings{
		Language: English, FollowupTemperature: 0.5, FollowupMaxTokens: 200,
	}))
	_ = b.Initialize("key")

	qs, err := b.GenerateFollowups(context.Background(), "学習", "ctx")
	if err != nil {
		t.Fatalf("GenerateFollowups: %v", err)
	}
	if len(qs) != 3 || qs[0] != "何を学びましたか？" {
		t.Fatalf("questions = %q", qs)
	}
	req := p.Calls()[0].Req
	if req.Temperature != 0.5 || req.MaxTokens != 200 {
		t.Errorf("sampling = %v/%d, want 0.5/200", req.Temperature, req.MaxTokens)
	}
}

func TestLLMBackend_FallbackOnPrimaryFailure(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("quota exceeded")}
	local := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "- local"}}
	b, _ := newTestBackend(t, primary, WithFallback("ollama", local))
	_ = b.Initialize("key")

	got, err := b.ExtractConcepts(context.Background(), "x", nil)
	if err != nil {
		t.Fatalf("ExtractConcepts: %v", err)
	}
	if len(got) != 1 || got[0].Text != "local" {
		t.Fatalf("got %+v, want fallback result", got)
	}
}

func TestLLMBackend_ErrorsAreWrapped(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	b, _ := newTestBackend(t, &llmmock.Provider{CompleteErr: boom})
	_ = b.Initialize("key")
	if _, err := b.ExtractConcepts(context.Background(), "x", nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
}

func TestLLMBackend_SetLanguage(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: ""}}
	b, _ := newTestBackend(t, p)
	_ = b.Initialize("key")
	b.SetLanguage(English)
	if b.Settings().Language != English {
		t.Fatal("language not updated")
	}
	_, _ = b.ExtractConcepts(context.Background(), "x", nil)
	if sys := p.Calls()[0].Req.SystemPrompt; sys != prompts[English].conceptSystem {
		t.Error("expected English system prompt after SetLanguage")
	}
}
