package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIsIdempotent(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if err := RegisterDefault(); err != nil {
		t.Fatalf("register default: %v", err)
	}
}

func TestHelpersAfterRegister(t *testing.T) {
	if err := RegisterDefault(); err != nil {
		t.Fatalf("register: %v", err)
	}
	// must not panic
	IncStart("a")
	IncFailure("a", "timeout")
	IncStop("a")
	RecordStateTransition("a", "starting", "running")
	ObserveReadyDuration("a", 0.25)
	SetPortsAllocated(2)
	SetSessionsActive(1)
	IncSessionCreated("shared")
}

func TestHandlerServesMetrics(t *testing.T) {
	if err := RegisterDefault(); err != nil {
		t.Fatalf("register: %v", err)
	}
	IncStart("handler-test")
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Fatalf("empty metrics body")
	}
}
