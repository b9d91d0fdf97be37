package middleware

import (
	"net/http"

	"github.com/platinummonkey/taskboard/pkg/contextkeys"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/rbac"
)

// ErrorWriter renders a gate error as an HTTP response
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authz exposes the rbac gates as route middleware. Project gates read
// the project ID from a mux path variable.
type Authz struct {
	gate       *rbac.Gate
	writeError ErrorWriter
}

// NewAuthz creates gate middleware that reports failures through writeError
func NewAuthz(gate *rbac.Gate, writeError ErrorWriter) *Authz {
	return &Authz{gate: gate, writeError: writeError}
}

// RequireSystemRole admits subjects whose system role is at least min
func (a *Authz) RequireSystemRole(min rbac.SystemRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.gate.RequireSystemRole(r.Context(), Subject(r), min); err != nil {
				a.writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireProjectRole admits subjects whose effective role on the project
// named by param is at least min. The resolution is stored for handlers.
func (a *Authz) RequireProjectRole(param string, min rbac.ProjectRole) func(http.Handler) http.Handler {
	return a.projectGate(param, func(r *http.Request, projectID int64) (rbac.Resolution, error) {
		return a.gate.RequireProjectRole(r.Context(), Subject(r), projectID, min)
	})
}

// RequireExactProjectRole admits only subjects holding exactly role
func (a *Authz) RequireExactProjectRole(param string, role rbac.ProjectRole) func(http.Handler) http.Handler {
	return a.projectGate(param, func(r *http.Request, projectID int64) (rbac.Resolution, error) {
		return a.gate.RequireExactProjectRole(r.Context(), Subject(r), projectID, role)
	})
}

func (a *Authz) projectGate(param string, check func(*http.Request, int64) (rbac.Resolution, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			projectID, ok := httputil.ParsePathInt64OrError(w, r, param)
			if !ok {
				return
			}
			res, err := check(r, projectID)
			if err != nil {
				a.writeError(w, r, err)
				return
			}
			ctx := contextkeys.WithResolution(r.Context(), res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetResolution returns the resolution stored by a project gate
func GetResolution(r *http.Request) (rbac.Resolution, bool) {
	res, ok := contextkeys.Resolution(r.Context()).(rbac.Resolution)
	return res, ok
}
