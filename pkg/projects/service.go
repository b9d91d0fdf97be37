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

// Service manages projects and their tasks on behalf of an authorized actor
type Service interface {
	CreateProject(ctx context.Context, actor rbac.Subject, req CreateProjectRequest) (*Project, error)
	GetProject(ctx context.Context, actor rbac.Subject, id int64) (*Project, error)
	UpdateProject(ctx context.Context, actor rbac.Subject, id int64, req UpdateProjectRequest) (*Project, error)
	ArchiveProject(ctx context.Context, actor rbac.Subject, id int64) error
	ListProjects(ctx context.Context, actor rbac.Subject, filter ProjectFilter) ([]*Project, int, error)
	ProjectStats(ctx context.Context, actor rbac.Subject) (*ProjectStats, error)

	CreateTask(ctx context.Context, actor rbac.Subject, projectID int64, req CreateTaskRequest) (*Task, error)
	GetTask(ctx context.Context, actor rbac.Subject, id int64) (*Task, error)
	UpdateTask(ctx context.Context, actor rbac.Subject, id int64, req UpdateTaskRequest) (*Task, error)
	ListTasks(ctx context.Context, actor rbac.Subject, filter TaskFilter) ([]*Task, int, error)
}

// SQLService implements Service over database/sql
type SQLService struct {
	db          *sql.DB
	tx          storage.TxManager
	gate        *rbac.Gate
	store       rbac.Store
	visibility  *rbac.VisibilityFilter
	auditLogger audit.Logger
}

// NewSQLService creates a new SQLService. The visibility filter follows the
// gate resolver's legacy owner grant setting.
func NewSQLService(db *sql.DB, gate *rbac.Gate, store rbac.Store, auditLogger audit.Logger) *SQLService {
	if auditLogger == nil {
		auditLogger = audit.NoOpLogger{}
	}
	return &SQLService{
		db:          db,
		tx:          storage.NewTxManager(db),
		gate:        gate,
		store:       store,
		visibility:  rbac.NewVisibilityFilter(gate.Resolver().LegacyOwnerGrant()),
		auditLogger: auditLogger,
	}
}

// Visibility returns the filter used for listings
func (s *SQLService) Visibility() *rbac.VisibilityFilter {
	return s.visibility
}

// CreateProject creates a project together with its OWNER membership. The
// actor owns the project unless a system ADMIN designates someone else;
// the actor is always recorded as creator.
func (s *SQLService) CreateProject(ctx context.Context, actor rbac.Subject, req CreateProjectRequest) (*Project, error) {
	if err := s.gate.CanCreateProject(ctx, actor); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return nil, fmt.Errorf("%w: project name must be 1-255 characters", rbac.ErrInvalidInput)
	}
	status := req.Status
	if status == "" {
		status = StatusPlanning
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown project status %q", rbac.ErrInvalidInput, status)
	}

	ownerID := actor.UserID
	if req.OwnerID != nil && *req.OwnerID != actor.UserID {
		if actor.SystemRole != rbac.SystemRoleAdmin {
			return nil, &rbac.ForbiddenError{Required: rbac.SystemRoleAdmin.String()}
		}
		ownerID = *req.OwnerID
	}

	now := time.Now().UTC()
	project := &Project{
		Name:        name,
		Description: req.Description,
		Status:      status,
		OwnerID:     ownerID,
		CreatorID:   actor.UserID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		owner, err := s.store.GetSubject(ctx, ownerID)
		if err != nil {
			return err
		}
		if !owner.Active {
			return rbac.ErrUserNotFound
		}

		err = storage.Executor(ctx, s.db).QueryRowContext(ctx, `
			INSERT INTO projects (name, description, status, owner_id, creator_id, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
			RETURNING id
		`, project.Name, project.Description, string(project.Status), project.OwnerID, project.CreatorID, now, now).Scan(&project.ID)
		if err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		addedBy := actor.UserID
		return s.store.InsertMembership(ctx, &rbac.Membership{
			ProjectID: project.ID,
			UserID:    ownerID,
			Role:      rbac.RoleOwner,
			JoinedAt:  now,
			AddedBy:   &addedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx, audit.NewEvent(ctx, audit.EventTypeProjectCreate, audit.EventStatusSuccess).
		WithActor(actor.UserID).
		WithProject(project.ID).
		WithResource(audit.ResourceTypeProject, strconv.FormatInt(project.ID, 10)).
		With("owner_id", ownerID))
	return project, nil
}

// GetProject returns a project to anyone with standing on it
func (s *SQLService) GetProject(ctx context.Context, actor rbac.Subject, id int64) (*Project, error) {
	if _, err := s.gate.RequireProjectRole(ctx, actor, id, rbac.RoleViewer); err != nil {
		return nil, err
	}
	return s.loadProject(ctx, id)
}

// UpdateProject changes a project's details; project ADMIN and above
func (s *SQLService) UpdateProject(ctx context.Context, actor rbac.Subject, id int64, req UpdateProjectRequest) (*Project, error) {
	if _, err := s.gate.RequireProjectRole(ctx, actor, id, rbac.RoleAdmin); err != nil {
		return nil, err
	}

	project, err := s.loadProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > 255 {
			return nil, fmt.Errorf("%w: project name must be 1-255 characters", rbac.ErrInvalidInput)
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown project status %q", rbac.ErrInvalidInput, *req.Status)
		}
		project.Status = *req.Status
	}
	project.UpdatedAt = time.Now().UTC()

	_, err = storage.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE projects SET name = $1, description = $2, status = $3, updated_at = $4 WHERE id = $5
	`, project.Name, project.Description, string(project.Status), project.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	s.log(ctx, audit.NewEvent(ctx, audit.EventTypeProjectUpdate, audit.EventStatusSuccess).
		WithActor(actor.UserID).
		WithProject(id).
		WithResource(audit.ResourceTypeProject, strconv.FormatInt(id, 10)))
	return project, nil
}

// ArchiveProject soft-deletes a project. Only its OWNER may do this.
func (s *SQLService) ArchiveProject(ctx context.Context, actor rbac.Subject, id int64) error {
	if _, err := s.gate.RequireExactProjectRole(ctx, actor, id, rbac.RoleOwner); err != nil {
		return err
	}

	_, err := storage.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE projects SET active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}

	s.log(ctx, audit.NewEvent(ctx, audit.EventTypeProjectArchive, audit.EventStatusSuccess).
		WithActor(actor.UserID).
		WithProject(id).
		WithResource(audit.ResourceTypeProject, strconv.FormatInt(id, 10)))
	return nil
}

const projectSelect = `
	SELECT p.id, p.name, p.description, p.status, p.owner_id, p.creator_id, p.active, p.created_at, p.updated_at,
	       (SELECT COUNT(*) FROM tasks ct WHERE ct.project_id = p.id) AS task_count,
	       (SELECT COUNT(*) FROM tasks dt WHERE dt.project_id = p.id AND dt.status = 'done') AS completed_tasks
	FROM projects p`

// ListProjects returns the projects visible to actor, newest first, with
// the total number of matches ignoring paging
func (s *SQLService) ListProjects(ctx context.Context, actor rbac.Subject, filter ProjectFilter) ([]*Project, int, error) {
	var where whereClause
	where.predicate(s.visibility.ProjectPredicate(actor, "p", where.next()))
	if filter.Status != "" {
		where.add("p.status = $%d", string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where.add(`LOWER(p.name) LIKE $%d ESCAPE '\'`, likePattern(search))
	}

	exec := storage.Executor(ctx, s.db)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects p`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	suffix, args := where.page(limit, offset)
	rows, err := exec.QueryContext(ctx, projectSelect+where.String()+` ORDER BY p.created_at DESC, p.id DESC`+suffix, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		project, err := scanProject(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

// ProjectStats aggregates over the projects visible to actor only
func (s *SQLService) ProjectStats(ctx context.Context, actor rbac.Subject) (*ProjectStats, error) {
	exec := storage.Executor(ctx, s.db)
	stats := &ProjectStats{ByStatus: make(map[Status]int)}

	var where whereClause
	where.predicate(s.visibility.ProjectPredicate(actor, "p", where.next()))

	rows, err := exec.QueryContext(ctx, `SELECT p.status, COUNT(*) FROM projects p`+where.String()+` GROUP BY p.status`, where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate projects: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan project stats: %w", err)
		}
		stats.ByStatus[Status(status)] = count
		stats.TotalProjects += count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	err = exec.QueryRowContext(ctx, `
		SELECT COUNT(t.id), COALESCE(SUM(CASE WHEN t.status = 'done' THEN 1 ELSE 0 END), 0)
		FROM tasks t
		JOIN projects p ON p.id = t.project_id`+where.String(), where.args...,
	).Scan(&stats.TotalTasks, &stats.CompletedTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tasks: %w", err)
	}

	stats.CompletionPercent = percent(stats.CompletedTasks, stats.TotalTasks)
	return stats, nil
}

func (s *SQLService) loadProject(ctx context.Context, id int64) (*Project, error) {
	row := storage.Executor(ctx, s.db).QueryRowContext(ctx, projectSelect+` WHERE p.id = $1`, id)
	project, err := scanProject(row.Scan)
	if err == sql.ErrNoRows {
		return nil, rbac.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return project, nil
}

func scanProject(scan func(dest ...interface{}) error) (*Project, error) {
	var p Project
	var status string
	err := scan(&p.ID, &p.Name, &p.Description, &status, &p.OwnerID, &p.CreatorID, &p.Active,
		&p.CreatedAt, &p.UpdatedAt, &p.TaskCount, &p.CompletedTasks)
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	p.CompletionPercent = percent(p.CompletedTasks, p.TaskCount)
	return &p, nil
}

func (s *SQLService) log(ctx context.Context, event *audit.AuditEvent) {
	_ = s.auditLogger.Log(ctx, event)
}
