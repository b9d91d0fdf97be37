package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/middleware"
	"github.com/platinummonkey/taskboard/pkg/projects"
)

// TaskHandlers handles task creation, listing and updates
type TaskHandlers struct {
	projects projects.Service
}

// NewTaskHandlers creates a new task handlers instance
func NewTaskHandlers(s *Server) *TaskHandlers {
	return &TaskHandlers{projects: s.deps.Projects}
}

// RegisterRoutes registers task routes
func (h *TaskHandlers) RegisterRoutes(router *mux.Router) {
	handle(router, "/projects/{project_id:[0-9]+}/tasks", http.MethodPost, auth.ScopeTasksWrite, h.create)
	handle(router, "/tasks", http.MethodGet, auth.ScopeTasksRead, h.list)
	handle(router, "/tasks/{task_id:[0-9]+}", http.MethodGet, auth.ScopeTasksRead, h.get)
	handle(router, "/tasks/{task_id:[0-9]+}", http.MethodPut, auth.ScopeTasksWrite, h.update)
}

// create handles POST /projects/{project_id}/tasks
func (h *TaskHandlers) create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	var req projects.CreateTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	task, err := h.projects.CreateTask(r.Context(), middleware.Subject(r), projectID, req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, task)
}

// list handles GET /tasks?project_id=&status=&assignee_id=&search=&limit=&offset=
func (h *TaskHandlers) list(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	projectID, err := httputil.ParseQueryInt64Ptr(r, "project_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	assigneeID, err := httputil.ParseQueryInt64Ptr(r, "assignee_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter := projects.TaskFilter{
		ProjectID:  projectID,
		Status:     projects.TaskStatus(httputil.ParseQueryString(r, "status", "")),
		AssigneeID: assigneeID,
		Search:     httputil.ParseQueryString(r, "search", ""),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}

	tasks, total, err := h.projects.ListTasks(r.Context(), middleware.Subject(r), filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*projects.Task{}
	}
	_ = httputil.WriteList(w, tasks, total, page)
}

// get handles GET /tasks/{task_id}
func (h *TaskHandlers) get(w http.ResponseWriter, r *http.Request) {
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "task_id")
	if !ok {
		return
	}

	task, err := h.projects.GetTask(r.Context(), middleware.Subject(r), taskID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, task)
}

// update handles PUT /tasks/{task_id}
func (h *TaskHandlers) update(w http.ResponseWriter, r *http.Request) {
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "task_id")
	if !ok {
		return
	}
	var req projects.UpdateTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	task, err := h.projects.UpdateTask(r.Context(), middleware.Subject(r), taskID, req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, task)
}
