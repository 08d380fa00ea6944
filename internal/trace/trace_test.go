package trace

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("tracer provider replaced without an endpoint")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitExportsSpans(t *testing.T) {
	var requests atomic.Int32
	var gotAuth, gotPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		gotAuth.Store(r.Header.Get("Authorization"))
		gotPath.Store(r.URL.Path)
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	shutdown, err := Init(context.Background(), Config{
		Endpoint: strings.TrimPrefix(server.URL, "http://"),
		URLPath:  "/otel/v1/traces",
		APIKey:   "secret",
	})
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "dialogue.turn")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	if requests.Load() == 0 {
		t.Fatalf("expected at least one export request")
	}
	if gotAuth.Load() != "Bearer secret" || gotPath.Load() != "/otel/v1/traces" {
		t.Fatalf("unexpected export request: auth=%v path=%v", gotAuth.Load(), gotPath.Load())
	}
}
