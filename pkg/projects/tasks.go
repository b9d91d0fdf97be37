package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/storage"
)

const maxTitleLength = 500

// CreateTask adds a task to a project; MEMBER and above
func (s *SQLService) CreateTask(ctx context.Context, actor rbac.Subject, projectID int64, req CreateTaskRequest) (*Task, error) {
	if _, err := s.gate.CanCreateTask(ctx, actor, projectID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: task title must be 1-%d characters", rbac.ErrInvalidInput, maxTitleLength)
	}

	status := req.Status
	if status == "" {
		status = TaskTodo
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown task status %q", rbac.ErrInvalidInput, status)
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", rbac.ErrInvalidInput, priority)
	}

	if req.AssigneeID != nil {
		if err := s.requireActiveUser(ctx, *req.AssigneeID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	task := &Task{
		ProjectID:   projectID,
		Title:       title,
		Description: req.Description,
		Status:      status,
		Priority:    priority,
		AssigneeID:  req.AssigneeID,
		CreatorID:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO tasks (project_id, title, description, status, priority, assignee_id, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, task.ProjectID, task.Title, task.Description, string(task.Status), string(task.Priority),
		nullableID(task.AssigneeID), task.CreatorID, now, now).Scan(&task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.log(ctx, audit.NewEvent(ctx, audit.EventTypeTaskCreate, audit.EventStatusSuccess).
		WithActor(actor.UserID).
		WithProject(projectID).
		WithResource(audit.ResourceTypeTask, strconv.FormatInt(task.ID, 10)))
	return task, nil
}

// GetTask returns a task to its assignee or anyone with standing on its project
func (s *SQLService) GetTask(ctx context.Context, actor rbac.Subject, id int64) (*Task, error) {
	task, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.RequireTaskAccess(ctx, actor, task.ProjectID, task.AssigneeID, rbac.RoleViewer); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask modifies a task. Project MEMBERs may change anything; an
// assignee without that standing may only move the task's status.
func (s *SQLService) UpdateTask(ctx context.Context, actor rbac.Subject, id int64, req UpdateTaskRequest) (*Task, error) {
	task, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.gate.RequireTaskAccess(ctx, actor, task.ProjectID, task.AssigneeID, rbac.RoleMember)
	if err != nil {
		return nil, err
	}
	if !res.Role.AtLeast(rbac.RoleMember) && !req.onlyStatus() {
		return nil, &rbac.ForbiddenError{Required: rbac.RoleMember.String()}
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > maxTitleLength {
			return nil, fmt.Errorf("%w: task title must be 1-%d characters", rbac.ErrInvalidInput, maxTitleLength)
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown task status %q", rbac.ErrInvalidInput, *req.Status)
		}
		task.Status = *req.Status
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", rbac.ErrInvalidInput, *req.Priority)
		}
		task.Priority = *req.Priority
	}
	switch {
	case req.Unassign:
		task.AssigneeID = nil
	case req.AssigneeID != nil:
		if err := s.requireActiveUser(ctx, *req.AssigneeID); err != nil {
			return nil, err
		}
		task.AssigneeID = req.AssigneeID
	}
	task.UpdatedAt = time.Now().UTC()

	_, err = storage.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4, assignee_id = $5, updated_at = $6
		WHERE id = $7
	`, task.Title, task.Description, string(task.Status), string(task.Priority),
		nullableID(task.AssigneeID), task.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.log(ctx, audit.NewEvent(ctx, audit.EventTypeTaskUpdate, audit.EventStatusSuccess).
		WithActor(actor.UserID).
		WithProject(task.ProjectID).
		WithResource(audit.ResourceTypeTask, strconv.FormatInt(id, 10)).
		With("status", string(task.Status)))
	return task, nil
}

const taskSelect = `
	SELECT t.id, t.project_id, t.title, t.description, t.status, t.priority, t.assignee_id, t.creator_id, t.created_at, t.updated_at
	FROM tasks t`

// ListTasks returns the tasks visible to actor, newest first
func (s *SQLService) ListTasks(ctx context.Context, actor rbac.Subject, filter TaskFilter) ([]*Task, int, error) {
	var where whereClause
	where.predicate(s.visibility.TaskPredicate(actor, "t", where.next()))
	if filter.ProjectID != nil {
		where.add("t.project_id = $%d", *filter.ProjectID)
	}
	if filter.Status != "" {
		where.add("t.status = $%d", string(filter.Status))
	}
	if filter.AssigneeID != nil {
		where.add("t.assignee_id = $%d", *filter.AssigneeID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where.add(`LOWER(t.title) LIKE $%d ESCAPE '\'`, likePattern(search))
	}

	exec := storage.Executor(ctx, s.db)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks t`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	suffix, args := where.page(limit, offset)
	rows, err := exec.QueryContext(ctx, taskSelect+where.String()+` ORDER BY t.created_at DESC, t.id DESC`+suffix, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (s *SQLService) loadTask(ctx context.Context, id int64) (*Task, error) {
	row := storage.Executor(ctx, s.db).QueryRowContext(ctx, taskSelect+` WHERE t.id = $1`, id)
	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, rbac.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task, nil
}

func (s *SQLService) requireActiveUser(ctx context.Context, userID int64) error {
	subject, err := s.store.GetSubject(ctx, userID)
	if err != nil {
		return err
	}
	if !subject.Active {
		return rbac.ErrUserNotFound
	}
	return nil
}

func scanTask(scan func(dest ...interface{}) error) (*Task, error) {
	var t Task
	var status, priority string
	var assignee sql.NullInt64
	err := scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &status, &priority, &assignee,
		&t.CreatorID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = TaskStatus(status)
	t.Priority = Priority(priority)
	if assignee.Valid {
		id := assignee.Int64
		t.AssigneeID = &id
	}
	return &t, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
