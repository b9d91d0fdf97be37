package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/middleware"
	"github.com/platinummonkey/taskboard/pkg/rbac"
)

// MemberHandlers exposes the membership lifecycle
type MemberHandlers struct {
	members *rbac.MembershipManager
}

// NewMemberHandlers creates a new member handlers instance
func NewMemberHandlers(s *Server) *MemberHandlers {
	return &MemberHandlers{members: s.deps.Members}
}

// RegisterRoutes registers membership routes
func (h *MemberHandlers) RegisterRoutes(router *mux.Router) {
	const base = "/projects/{project_id:[0-9]+}"
	handle(router, base+"/members", http.MethodGet, auth.ScopeProjectsRead, h.list)
	handle(router, base+"/members", http.MethodPost, auth.ScopeProjectsWrite, h.add)
	handle(router, base+"/members/{user_id:[0-9]+}", http.MethodPut, auth.ScopeProjectsWrite, h.updateRole)
	handle(router, base+"/members/{user_id:[0-9]+}", http.MethodDelete, auth.ScopeProjectsWrite, h.remove)
	handle(router, base+"/leave", http.MethodPost, auth.ScopeProjectsWrite, h.leave)
	handle(router, base+"/transfer-ownership", http.MethodPost, auth.ScopeProjectsWrite, h.transfer)
}

type memberRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// projectRole normalizes a role label; validation stays with the manager
// so the gate runs first
func projectRole(label string) rbac.ProjectRole {
	return rbac.ProjectRole(strings.ToLower(strings.TrimSpace(label)))
}

// list handles GET /projects/{project_id}/members
func (h *MemberHandlers) list(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	members, err := h.members.ListMembers(r.Context(), middleware.Subject(r), projectID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if members == nil {
		members = []rbac.Membership{}
	}
	_ = httputil.WriteList(w, members, len(members), httputil.Page{})
}

// add handles POST /projects/{project_id}/members
func (h *MemberHandlers) add(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	membership, err := h.members.AddMember(r.Context(), middleware.Subject(r), projectID, req.UserID, projectRole(req.Role))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, membership)
}

// updateRole handles PUT /projects/{project_id}/members/{user_id}
func (h *MemberHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	membership, err := h.members.UpdateMemberRole(r.Context(), middleware.Subject(r), projectID, userID, projectRole(req.Role))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, membership)
}

// remove handles DELETE /projects/{project_id}/members/{user_id}
func (h *MemberHandlers) remove(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.members.RemoveMember(r.Context(), middleware.Subject(r), projectID, userID); err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// leave handles POST /projects/{project_id}/leave
func (h *MemberHandlers) leave(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	if err := h.members.LeaveProject(r.Context(), middleware.Subject(r), projectID); err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// transfer handles POST /projects/{project_id}/transfer-ownership
func (h *MemberHandlers) transfer(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	owner, err := h.members.TransferOwnership(r.Context(), middleware.Subject(r), projectID, req.UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, owner)
}
