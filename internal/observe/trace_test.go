package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder installs an in-memory tracer provider as the global one for the
// duration of the test.
func useRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

// withRequestID runs a request through chi's RequestID middleware and
// returns the context the handler saw.
func withRequestID(t *testing.T) context.Context {
	t.Helper()
	var ctx context.Context
	h := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	return ctx
}

func TestStartLLMSpan_Attributes(t *testing.T) {
	exp := useRecorder(t)

	_, span := StartLLMSpan(context.Background(), KindConcepts, "gpt-4o-mini")
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "extract.concepts" {
		t.Errorf("span name = %q, want extract.concepts", got.Name)
	}
	attrs := map[string]string{}
	for _, kv := range got.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["llm.model"] != "gpt-4o-mini" || attrs["thoughtmap.call"] != KindConcepts {
		t.Errorf("attributes = %v", attrs)
	}
	if got.Status.Code != codes.Unset {
		t.Errorf("status = %v, want unset", got.Status.Code)
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := useRecorder(t)

	_, span := StartSpan(context.Background(), "failing")
	EndSpan(span, errors.New("quota exceeded"))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "quota exceeded" {
		t.Errorf("status = %+v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected an exception event")
	}
}

func TestCorrelationID(t *testing.T) {
	useRecorder(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	reqCtx := withRequestID(t)
	reqID := middleware.GetReqID(reqCtx)
	if reqID == "" {
		t.Fatal("request id middleware did not run")
	}
	if got := CorrelationID(reqCtx); got != reqID {
		t.Errorf("without span: got %q, want request id %q", got, reqID)
	}

	spanCtx, span := StartSpan(reqCtx, "op")
	defer span.End()
	got := CorrelationID(spanCtx)
	if got == reqID || len(got) != 32 {
		t.Errorf("with span: got %q, want 32-char trace id", got)
	}
}

func TestLogger_Enrichment(t *testing.T) {
	useRecorder(t)

	tests := []struct {
		name    string
		ctx     func() context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     context.Background,
			notWant: []string{"trace_id", "request_id"},
		},
		{
			name:    "request only",
			ctx:     func() context.Context { return withRequestID(t) },
			want:    []string{"request_id="},
			notWant: []string{"trace_id"},
		},
		{
			name: "request and span",
			ctx: func() context.Context {
				ctx, _ := StartSpan(withRequestID(t), "op")
				return ctx
			},
			want: []string{"request_id=", "trace_id=", "span_id="},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tc.ctx()).Info("hello")
			out := buf.String()
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Errorf("log %q missing %q", out, w)
				}
			}
			for _, w := range tc.notWant {
				if strings.Contains(out, w) {
					t.Errorf("log %q should not contain %q", out, w)
				}
			}
		})
	}
}
