// Package middleware provides the taskboard request pipeline pieces that
// depend on identity: bearer token authentication, the rbac gates as
// route middleware, and rate limiting.
//
//	authn := middleware.NewAuthMiddleware(tokenManager, metrics)
//	authz := middleware.NewAuthz(gate, api.WriteError)
//	r.Handle("/projects/{project_id}", authz.RequireProjectRole("project_id", rbac.RoleViewer)(h))
//
// Rate limiting keys on the authenticated user, falling back to the
// client IP. The Redis limiter is shared across instances; the in-memory
// token bucket covers single instances and Redis outages.
package middleware
