package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsMiddlewareRecords(t *testing.T) {
	m := NewMetrics()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	req := httptest.NewRequest(http.MethodGet, "/baseline", nil)
	res := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(res, req)
	if res.Code != http.StatusTeapot {
		t.Fatalf("middleware must not swallow status, got %d", res.Code)
	}

	m.AuthzDecision("denied")

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	if !strings.Contains(body, "pelita_http_requests_total") {
		t.Fatalf("request counter missing from scrape")
	}
	if !strings.Contains(body, `pelita_authz_decisions_total{outcome="denied"} 1`) {
		t.Fatalf("authz decision counter missing from scrape:\n%s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AuthzDecision("allowed")
	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", res.Code)
	}
}
