package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(reg); err == nil {
		t.Error("registering twice should fail")
	}

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, "404"))
	ObserveRequest(http.MethodGet, http.StatusNotFound)
	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, "404")); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

func TestHandlerServesText(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("unexpected /metrics response %d", rec.Code)
	}
}
