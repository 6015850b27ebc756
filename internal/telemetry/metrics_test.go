package telemetry

import (
	"net/http/httptest"
	"testing"
)

func TestHandlerServesPrometheusFormat(t *testing.T) {
	FramesPresented.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatal("expected non-empty metrics body")
	}
}
