package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/middleware"
	"github.com/platinummonkey/taskboard/pkg/projects"
	"github.com/platinummonkey/taskboard/pkg/rbac"
)

const defaultAuditLimit = 100

// ProjectHandlers handles project CRUD, listing and stats
type ProjectHandlers struct {
	projects projects.Service
	audit    AuditReader
	authz    *middleware.Authz
}

// NewProjectHandlers creates a new project handlers instance
func NewProjectHandlers(s *Server) *ProjectHandlers {
	return &ProjectHandlers{projects: s.deps.Projects, audit: s.deps.Audit, authz: s.authz}
}

// RegisterRoutes registers project routes
func (h *ProjectHandlers) RegisterRoutes(router *mux.Router) {
	handle(router, "/projects", http.MethodPost, auth.ScopeProjectsWrite, h.create)
	handle(router, "/projects", http.MethodGet, auth.ScopeProjectsRead, h.list)
	handle(router, "/projects/stats", http.MethodGet, auth.ScopeProjectsRead, h.stats)
	handle(router, "/projects/{project_id:[0-9]+}", http.MethodGet, auth.ScopeProjectsRead, h.get)
	handle(router, "/projects/{project_id:[0-9]+}", http.MethodPut, auth.ScopeProjectsWrite, h.update)
	handle(router, "/projects/{project_id:[0-9]+}", http.MethodDelete, auth.ScopeProjectsWrite, h.archive)

	if h.audit != nil {
		router.Handle("/projects/{project_id:[0-9]+}/audit",
			middleware.RequireScope(auth.ScopeProjectsRead)(
				h.authz.RequireProjectRole("project_id", rbac.RoleAdmin)(http.HandlerFunc(h.auditTrail)),
			)).Methods(http.MethodGet)
	}
}

// create handles POST /projects
func (h *ProjectHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req projects.CreateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	project, err := h.projects.CreateProject(r.Context(), middleware.Subject(r), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, project)
}

// list handles GET /projects?search=&status=&limit=&offset=
func (h *ProjectHandlers) list(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter := projects.ProjectFilter{
		Search: httputil.ParseQueryString(r, "search", ""),
		Status: projects.Status(httputil.ParseQueryString(r, "status", "")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	items, total, err := h.projects.ListProjects(r.Context(), middleware.Subject(r), filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if items == nil {
		items = []*projects.Project{}
	}
	_ = httputil.WriteList(w, items, total, page)
}

// stats handles GET /projects/stats
func (h *ProjectHandlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.projects.ProjectStats(r.Context(), middleware.Subject(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, stats)
}

// get handles GET /projects/{project_id}
func (h *ProjectHandlers) get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	project, err := h.projects.GetProject(r.Context(), middleware.Subject(r), projectID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, project)
}

// update handles PUT /projects/{project_id}
func (h *ProjectHandlers) update(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	var req projects.UpdateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	project, err := h.projects.UpdateProject(r.Context(), middleware.Subject(r), projectID, req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, project)
}

// archive handles DELETE /projects/{project_id}
func (h *ProjectHandlers) archive(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	if err := h.projects.ArchiveProject(r.Context(), middleware.Subject(r), projectID); err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// auditTrail handles GET /projects/{project_id}/audit. The route gate has
// already required project ADMIN.
func (h *ProjectHandlers) auditTrail(w http.ResponseWriter, r *http.Request) {
	res, _ := middleware.GetResolution(r)
	limit, err := httputil.ParseQueryInt(r, "limit", defaultAuditLimit)
	if err != nil || limit <= 0 {
		httputil.WriteBadRequest(w, "limit must be a positive integer")
		return
	}

	events, err := h.audit.ListByProject(r.Context(), res.Project.ID, limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if events == nil {
		events = []*audit.AuditEvent{}
	}
	_ = httputil.WriteList(w, events, len(events), httputil.Page{Limit: limit})
}
