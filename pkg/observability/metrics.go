package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the server
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal       *prometheus.CounterVec
	MembershipOperationsTotal *prometheus.CounterVec
	TokenValidationsTotal     *prometheus.CounterVec
	ExpiredTokensRevokedTotal prometheus.Counter

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen    prometheus.Gauge
	DBConnectionsInUse   prometheus.Gauge
	DBConnectionsIdle    prometheus.Gauge
	DBConnectionsWaitCnt prometheus.Gauge
	DBWaitDuration       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskboard_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_authz_decisions_total",
				Help: "Authorization gate decisions by gate and outcome",
			},
			[]string{"gate", "outcome"},
		),
		MembershipOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_membership_operations_total",
				Help: "Membership lifecycle operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_token_validations_total",
				Help: "API token validations by result",
			},
			[]string{"result"},
		),
		ExpiredTokensRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskboard_expired_tokens_revoked_total",
				Help: "API tokens revoked by the expiry sweep",
			},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"backend"},
		),

		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_db_connections_open",
			Help: "Number of open database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_db_connections_in_use",
			Help: "Number of database connections in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		DBConnectionsWaitCnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_db_connections_wait_count",
			Help: "Total number of connections waited for",
		}),
		DBWaitDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_db_connections_wait_duration_seconds",
			Help: "Total time spent waiting for connections",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.MembershipOperationsTotal,
		m.TokenValidationsTotal,
		m.ExpiredTokensRevokedTotal,
		m.RateLimitedTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCnt,
		m.DBWaitDuration,
	)
	return m
}

// RecordAuthzDecision counts one gate decision
func (m *Metrics) RecordAuthzDecision(gate, outcome string) {
	m.AuthzDecisionsTotal.WithLabelValues(gate, outcome).Inc()
}

// RecordMembershipOperation counts one membership mutation attempt
func (m *Metrics) RecordMembershipOperation(operation, status string) {
	m.MembershipOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordTokenValidation counts one bearer token check
func (m *Metrics) RecordTokenValidation(result string) {
	m.TokenValidationsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited counts one rejected request
func (m *Metrics) RecordRateLimited(backend string) {
	m.RateLimitedTotal.WithLabelValues(backend).Inc()
}

// ReportDBStats copies connection pool statistics into the gauges
func (m *Metrics) ReportDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCnt.Set(float64(stats.WaitCount))
	m.DBWaitDuration.Set(stats.WaitDuration.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel uses the matched route template so IDs in the path do not
// explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments requests. Install it with
// Router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint exposes registry at /metrics
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
