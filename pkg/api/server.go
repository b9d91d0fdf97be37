package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/middleware"
	"github.com/platinummonkey/taskboard/pkg/observability"
	"github.com/platinummonkey/taskboard/pkg/projects"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/users"
)

var (
	_ rbac.Recorder                = (*observability.Metrics)(nil)
	_ middleware.TokenRecorder     = (*observability.Metrics)(nil)
	_ middleware.RateLimitRecorder = (*observability.Metrics)(nil)
	_ middleware.Authenticator     = (*auth.TokenManager)(nil)
)

// AuditReader lists a project's audit trail
type AuditReader interface {
	ListByProject(ctx context.Context, projectID int64, limit int) ([]*audit.AuditEvent, error)
}

// Dependencies wires the services behind the HTTP API. Fields marked
// optional may be left nil.
type Dependencies struct {
	Gate     *rbac.Gate
	Users    users.Service
	Tokens   *auth.TokenManager
	Projects projects.Service
	Members  *rbac.MembershipManager
	Audit    AuditReader // optional
	Logger   *observability.Logger

	Metrics  *observability.Metrics       // optional
	Registry *prometheus.Registry         // optional, served at /metrics
	Health   *observability.HealthChecker // optional

	// UserRateLimit throttles authenticated routes per user; PublicRateLimit
	// throttles unauthenticated routes per client IP. Both optional.
	UserRateLimit   *middleware.RateLimitMiddleware
	PublicRateLimit *middleware.RateLimitMiddleware

	Tracing      bool
	MaxBodyBytes int64
}

// Server is the taskboard HTTP API
type Server struct {
	deps    Dependencies
	router  *mux.Router
	handler http.Handler
	authz   *middleware.Authz
}

// NewServer creates the server and registers every route
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		authz:  middleware.NewAuthz(deps.Gate, WriteError),
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.LoggingMiddleware(deps.Logger),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
	)(handler)
	if deps.Tracing {
		handler = otelhttp.NewHandler(handler, "taskboard",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	s.handler = handler
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.deps.Health != nil {
		observability.RegisterHealthRoutes(s.router, s.deps.Health)
	}
	if s.deps.Registry != nil {
		observability.RegisterMetricsEndpoint(s.router, s.deps.Registry)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	public := api.NewRoute().Subrouter()
	if s.deps.PublicRateLimit != nil {
		public.Use(s.deps.PublicRateLimit.Handler)
	}
	userHandlers := NewUserHandlers(s)
	public.HandleFunc("/users", userHandlers.register).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	var tokenRecorder middleware.TokenRecorder
	if s.deps.Metrics != nil {
		tokenRecorder = s.deps.Metrics
	}
	authed.Use(middleware.NewAuthMiddleware(s.deps.Tokens, tokenRecorder).Handler)
	if s.deps.UserRateLimit != nil {
		authed.Use(s.deps.UserRateLimit.Handler)
	}

	userHandlers.RegisterRoutes(authed)
	NewTokenHandlers(s).RegisterRoutes(authed)
	NewProjectHandlers(s).RegisterRoutes(authed)
	NewMemberHandlers(s).RegisterRoutes(authed)
	NewTaskHandlers(s).RegisterRoutes(authed)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// handle registers h on router behind a token scope check
func handle(router *mux.Router, path, method string, scope auth.Scope, h http.HandlerFunc) {
	router.Handle(path, middleware.RequireScope(scope)(h)).Methods(method)
}
