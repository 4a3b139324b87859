package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestDefaultGatherer_HasKioskMetrics(t *testing.T) {
	NewRecorder().IncRequests()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "kiosk_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("kiosk_requests_total not registered on the default registry")
	}
}

func TestHandler_ExposesKioskMetrics(t *testing.T) {
	rec := NewRecorder()
	rec.IncRequests()
	rec.MarkOK(APIStocks)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(w.Result().Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "kiosk_requests_total") {
		t.Error("Expected metrics output to contain kiosk_requests_total")
	}
	if !strings.Contains(bodyStr, `kiosk_api_results_total{api="stocks",result="ok"}`) {
		t.Error("Expected metrics output to contain stocks ok results")
	}
}
