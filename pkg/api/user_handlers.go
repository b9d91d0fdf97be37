package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/middleware"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/users"
)

// UserHandlers handles account registration and administration
type UserHandlers struct {
	users users.Service
	authz *middleware.Authz
}

// NewUserHandlers creates a new user handlers instance
func NewUserHandlers(s *Server) *UserHandlers {
	return &UserHandlers{users: s.deps.Users, authz: s.authz}
}

// RegisterRoutes registers the authenticated user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/me", h.me).Methods(http.MethodGet)
	handle(router, "/users", http.MethodGet, auth.ScopeUsersAdmin, h.list)
	router.Handle("/users/{user_id:[0-9]+}",
		middleware.RequireScope(auth.ScopeUsersAdmin)(
			h.authz.RequireSystemRole(rbac.SystemRoleAdmin)(http.HandlerFunc(h.get)),
		)).Methods(http.MethodGet)
	handle(router, "/users/{user_id:[0-9]+}/role", http.MethodPut, auth.ScopeUsersAdmin, h.updateRole)
	handle(router, "/users/{user_id:[0-9]+}/deactivate", http.MethodPost, auth.ScopeUsersAdmin, h.deactivate)
}

// register handles POST /users
func (h *UserHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, user)
}

// me handles GET /users/me
func (h *UserHandlers) me(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"user":   authCtx.User,
		"scopes": authCtx.Scopes,
	})
}

// list handles GET /users
func (h *UserHandlers) list(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	accounts, err := h.users.List(r.Context(), middleware.Subject(r), page.Limit, page.Offset)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []*auth.User{}
	}
	_ = httputil.WriteList(w, accounts, len(accounts), page)
}

// get handles GET /users/{user_id}
func (h *UserHandlers) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}

// updateRole handles PUT /users/{user_id}/role
func (h *UserHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := rbac.ParseSystemRole(req.Role)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.users.UpdateSystemRole(r.Context(), middleware.Subject(r), userID, role)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}

// deactivate handles POST /users/{user_id}/deactivate
func (h *UserHandlers) deactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.users.Deactivate(r.Context(), middleware.Subject(r), userID); err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
