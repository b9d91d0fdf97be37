package observability

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errTest = errors.New("boom")

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAuthzDecision("project_role", "forbidden")
	m.RecordAuthzDecision("project_role", "forbidden")
	m.RecordMembershipOperation("add", "success")
	m.RecordTokenValidation("invalid")
	m.RecordRateLimited("redis")
	m.ExpiredTokensRevokedTotal.Add(3)

	if got := testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("project_role", "forbidden")); got != 2 {
		t.Errorf("Expected 2 forbidden decisions, got %v", got)
	}
	if got := testutil.ToFloat64(m.MembershipOperationsTotal.WithLabelValues("add", "success")); got != 1 {
		t.Errorf("Expected 1 membership add, got %v", got)
	}
	if got := testutil.ToFloat64(m.TokenValidationsTotal.WithLabelValues("invalid")); got != 1 {
		t.Errorf("Expected 1 invalid token, got %v", got)
	}
	if got := testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("redis")); got != 1 {
		t.Errorf("Expected 1 rate limited request, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExpiredTokensRevokedTotal); got != 3 {
		t.Errorf("Expected 3 revoked tokens, got %v", got)
	}
}

func TestMetrics_ReportDBStats(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ReportDBStats(sql.DBStats{
		OpenConnections: 5,
		InUse:           3,
		Idle:            2,
		WaitCount:       7,
		WaitDuration:    1500 * time.Millisecond,
	})

	if got := testutil.ToFloat64(m.DBConnectionsInUse); got != 3 {
		t.Errorf("Expected 3 in use, got %v", got)
	}
	if got := testutil.ToFloat64(m.DBWaitDuration); got != 1.5 {
		t.Errorf("Expected 1.5s wait, got %v", got)
	}
}

func TestHTTPMetricsMiddleware_RouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/v1/projects/{projectID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})
	RegisterMetricsEndpoint(router, registry)

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/projects/"+id, nil))
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/projects/{projectID}", "404"))
	if got != 3 {
		t.Errorf("Expected 3 requests under the route template, got %v", got)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "taskboard_http_requests_total") {
		t.Error("Expected exposition to include taskboard_http_requests_total")
	}
}
