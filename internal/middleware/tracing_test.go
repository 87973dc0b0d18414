package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withSpanRecorder installs a recording tracer provider for the duration of
// the test and restores the previous global provider afterwards.
func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestTracingNamesSpanAfterMethodAndPath(t *testing.T) {
	recorder := withSpanRecorder(t)

	handler := Tracing("urbanscape-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/scenarios/7/services", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].Name(); got != "GET /scenarios/7/services" {
		t.Errorf("span name = %q, want %q", got, "GET /scenarios/7/services")
	}
}

func TestTracingExposesTraceAndSpanIDs(t *testing.T) {
	withSpanRecorder(t)

	var traceID, spanID string
	handler := Tracing("urbanscape-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r)
		spanID = GetSpanID(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if len(traceID) != 32 {
		t.Errorf("trace id %q, want 32 hex characters", traceID)
	}
	if len(spanID) != 16 {
		t.Errorf("span id %q, want 16 hex characters", spanID)
	}
}

func TestTraceIDsEmptyWithoutActiveSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	if got := GetTraceID(req); got != "" {
		t.Errorf("GetTraceID = %q, want empty", got)
	}
	if got := GetSpanID(req); got != "" {
		t.Errorf("GetSpanID = %q, want empty", got)
	}
}

func TestTracingPropagatesIncomingTraceParent(t *testing.T) {
	withSpanRecorder(t)

	var traceID string
	handler := Tracing("urbanscape-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/scenarios/7/geometries", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %q, want the id from the incoming traceparent", traceID)
	}
}
