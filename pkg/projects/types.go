package projects

import (
	"time"
)

// Status represents a project's workflow state
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known project status
func (s Status) Valid() bool {
	switch s {
	case StatusPlanning, StatusActive, StatusOnHold, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// TaskStatus represents a task's position on the board
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
)

// Valid reports whether s is a known task status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskReview, TaskDone:
		return true
	}
	return false
}

// Priority represents task urgency
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Project represents a project with its task aggregates
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	OwnerID     int64     `json:"owner_id"`
	CreatorID   int64     `json:"creator_id"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	TaskCount         int     `json:"task_count"`
	CompletedTasks    int     `json:"completed_tasks"`
	CompletionPercent float64 `json:"completion_percent"`
}

// CreateProjectRequest is the input to CreateProject
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status,omitempty"`
	// OwnerID designates another owner; system ADMIN only
	OwnerID *int64 `json:"owner_id,omitempty"`
}

// UpdateProjectRequest is the input to UpdateProject; nil fields are left alone
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
}

// ProjectFilter narrows ListProjects
type ProjectFilter struct {
	Search string
	Status Status
	Limit  int
	Offset int
}

// ProjectStats summarizes the projects a subject can see
type ProjectStats struct {
	TotalProjects     int            `json:"total_projects"`
	ByStatus          map[Status]int `json:"by_status"`
	TotalTasks        int            `json:"total_tasks"`
	CompletedTasks    int            `json:"completed_tasks"`
	CompletionPercent float64        `json:"completion_percent"`
}

// Task represents a unit of work within a project
type Task struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	CreatorID   int64      `json:"creator_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateTaskRequest is the input to CreateTask
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
}

// UpdateTaskRequest is the input to UpdateTask; nil fields are left alone
type UpdateTaskRequest struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
	Priority    *Priority   `json:"priority,omitempty"`
	AssigneeID  *int64      `json:"assignee_id,omitempty"`
	// Unassign clears the assignee; it wins over AssigneeID
	Unassign bool `json:"unassign,omitempty"`
}

// onlyStatus reports whether the request changes nothing but the status
func (r UpdateTaskRequest) onlyStatus() bool {
	return r.Title == nil && r.Description == nil && r.Priority == nil && r.AssigneeID == nil && !r.Unassign
}

// TaskFilter narrows ListTasks
type TaskFilter struct {
	ProjectID  *int64
	Status     TaskStatus
	AssigneeID *int64
	Search     string
	Limit      int
	Offset     int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(int(float64(part)*1000/float64(whole)+0.5)) / 10
}
