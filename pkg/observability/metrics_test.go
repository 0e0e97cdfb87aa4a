package observability

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics.AuthAttemptsTotal == nil || metrics.HTTPRequestsTotal == nil {
		t.Fatal("metrics not initialized")
	}

	metrics.UsersProvisionedTotal.Inc()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "tasktrack_users_provisioned_total" {
			found = true
		}
	}
	if !found {
		t.Error("tasktrack_users_provisioned_total not registered")
	}
}

func TestMetrics_RecordAuth(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordAuth("session", OutcomeSuccess)
	metrics.RecordAuth("session", OutcomeSuccess)
	metrics.RecordAuth("external", OutcomeInvalid)

	if got := testutil.ToFloat64(metrics.AuthAttemptsTotal.WithLabelValues("session", OutcomeSuccess)); got != 2 {
		t.Errorf("Expected 2 session successes, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.AuthAttemptsTotal.WithLabelValues("external", OutcomeInvalid)); got != 1 {
		t.Errorf("Expected 1 external failure, got %v", got)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	metrics.RecordAuth("session", OutcomeSuccess)
	metrics.RecordCache("lru", true)
	metrics.RecordDBStats(sql.DBStats{})
	metrics.RecordRateLimited("login")
}

func TestMetrics_RecordRateLimited(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.RecordRateLimited("login")

	if got := testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("login")); got != 1 {
		t.Errorf("Expected 1 rejection, got %v", got)
	}
}

func TestMetrics_RecordCache(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordCache("redis", true)
	metrics.RecordCache("redis", false)
	metrics.RecordCache("redis", false)

	if got := testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("redis")); got != 1 {
		t.Errorf("Expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("redis")); got != 2 {
		t.Errorf("Expected 2 misses, got %v", got)
	}
}

func TestMetrics_RecordDBStats(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.RecordDBStats(sql.DBStats{InUse: 3, Idle: 2, WaitCount: 7})

	if got := testutil.ToFloat64(metrics.DBConnectionsActive); got != 3 {
		t.Errorf("Expected 3 active, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsIdle); got != 2 {
		t.Errorf("Expected 2 idle, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsWait); got != 7 {
		t.Errorf("Expected wait count 7, got %v", got)
	}
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}).Methods(http.MethodGet)

	for _, id := range []string{"1", "2", "3"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		if rr.Code != http.StatusTeapot {
			t.Fatalf("unexpected status %d", rr.Code)
		}
	}

	if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418")); got != 3 {
		t.Errorf("Expected 3 requests under the route template, got %v", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.SessionTokensIssued.Inc()

	serveMux := http.NewServeMux()
	RegisterMetricsEndpoint(serveMux, registry)

	rr := httptest.NewRecorder()
	serveMux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "tasktrack_session_tokens_issued_total 1") {
		t.Errorf("metrics output missing issued counter:\n%s", rr.Body.String())
	}
}
