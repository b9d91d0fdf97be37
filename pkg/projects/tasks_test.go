package projects

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/storage/sqlitetest"
)

func taskIDs(tasks []*Task) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func ptr[T any](v T) *T {
	return &v
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	member := f.user(t, "member", rbac.SystemRoleUser)
	viewer := f.user(t, "viewer", rbac.SystemRoleUser)
	project := f.createProject(t, admin, "Apollo")

	_, err := f.members.AddMember(ctx, admin, project.ID, member.UserID, rbac.RoleMember)
	require.NoError(t, err)
	_, err = f.members.AddMember(ctx, admin, project.ID, viewer.UserID, rbac.RoleViewer)
	require.NoError(t, err)

	task, err := f.svc.CreateTask(ctx, member, project.ID, CreateTaskRequest{Title: " launch ", AssigneeID: &viewer.UserID})
	require.NoError(t, err)
	assert.NotZero(t, task.ID)
	assert.Equal(t, "launch", task.Title)
	assert.Equal(t, TaskTodo, task.Status)
	assert.Equal(t, PriorityMedium, task.Priority)
	assert.Equal(t, member.UserID, task.CreatorID)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, viewer.UserID, *task.AssigneeID)

	_, err = f.svc.CreateTask(ctx, viewer, project.ID, CreateTaskRequest{Title: "nope"})
	assert.ErrorIs(t, err, rbac.ErrForbidden)

	stranger := f.user(t, "stranger", rbac.SystemRoleUser)
	_, err = f.svc.CreateTask(ctx, stranger, project.ID, CreateTaskRequest{Title: "nope"})
	assert.ErrorIs(t, err, rbac.ErrUnauthorized)

	_, err = f.svc.CreateTask(ctx, member, 9999, CreateTaskRequest{Title: "nope"})
	assert.ErrorIs(t, err, rbac.ErrProjectNotFound)
}

func TestCreateTask_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	project := f.createProject(t, admin, "Apollo")

	gone := f.user(t, "gone", rbac.SystemRoleUser)
	sqlitetest.DeactivateUser(t, f.db, gone.UserID)

	tests := []struct {
		name    string
		req     CreateTaskRequest
		wantErr error
	}{
		{"empty title", CreateTaskRequest{Title: " "}, rbac.ErrInvalidInput},
		{"unknown status", CreateTaskRequest{Title: "x", Status: "blocked"}, rbac.ErrInvalidInput},
		{"unknown priority", CreateTaskRequest{Title: "x", Priority: "critical"}, rbac.ErrInvalidInput},
		{"missing assignee", CreateTaskRequest{Title: "x", AssigneeID: ptr(int64(9999))}, rbac.ErrUserNotFound},
		{"inactive assignee", CreateTaskRequest{Title: "x", AssigneeID: &gone.UserID}, rbac.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTask(ctx, admin, project.ID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetTask_AssigneeAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	contractor := f.user(t, "contractor", rbac.SystemRoleUser)
	stranger := f.user(t, "stranger", rbac.SystemRoleUser)
	project := f.createProject(t, admin, "Apollo")

	task, err := f.svc.CreateTask(ctx, admin, project.ID, CreateTaskRequest{Title: "fix", AssigneeID: &contractor.UserID})
	require.NoError(t, err)

	got, err := f.svc.GetTask(ctx, contractor, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	_, err = f.svc.GetTask(ctx, stranger, task.ID)
	assert.ErrorIs(t, err, rbac.ErrUnauthorized)

	_, err = f.svc.GetTask(ctx, admin, 9999)
	assert.ErrorIs(t, err, rbac.ErrTaskNotFound)

	require.NoError(t, f.svc.ArchiveProject(ctx, admin, project.ID))
	_, err = f.svc.GetTask(ctx, contractor, task.ID)
	assert.ErrorIs(t, err, rbac.ErrProjectNotFound)
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	member := f.user(t, "member", rbac.SystemRoleUser)
	contractor := f.user(t, "contractor", rbac.SystemRoleUser)
	viewer := f.user(t, "viewer", rbac.SystemRoleUser)
	project := f.createProject(t, admin, "Apollo")

	_, err := f.members.AddMember(ctx, admin, project.ID, member.UserID, rbac.RoleMember)
	require.NoError(t, err)
	_, err = f.members.AddMember(ctx, admin, project.ID, viewer.UserID, rbac.RoleViewer)
	require.NoError(t, err)

	task, err := f.svc.CreateTask(ctx, member, project.ID, CreateTaskRequest{Title: "fix", AssigneeID: &contractor.UserID})
	require.NoError(t, err)

	t.Run("member edits everything", func(t *testing.T) {
		updated, err := f.svc.UpdateTask(ctx, member, task.ID, UpdateTaskRequest{
			Title:    ptr("fix harder"),
			Priority: ptr(PriorityUrgent),
		})
		require.NoError(t, err)
		assert.Equal(t, "fix harder", updated.Title)
		assert.Equal(t, PriorityUrgent, updated.Priority)
		require.NotNil(t, updated.AssigneeID)
	})

	t.Run("assignee may only move status", func(t *testing.T) {
		updated, err := f.svc.UpdateTask(ctx, contractor, task.ID, UpdateTaskRequest{Status: ptr(TaskInProgress)})
		require.NoError(t, err)
		assert.Equal(t, TaskInProgress, updated.Status)

		_, err = f.svc.UpdateTask(ctx, contractor, task.ID, UpdateTaskRequest{Title: ptr("mine now")})
		assert.ErrorIs(t, err, rbac.ErrForbidden)
	})

	t.Run("viewer cannot edit", func(t *testing.T) {
		_, err := f.svc.UpdateTask(ctx, viewer, task.ID, UpdateTaskRequest{Status: ptr(TaskDone)})
		assert.ErrorIs(t, err, rbac.ErrForbidden)
	})

	t.Run("unassign wins", func(t *testing.T) {
		updated, err := f.svc.UpdateTask(ctx, member, task.ID, UpdateTaskRequest{Unassign: true, AssigneeID: &viewer.UserID})
		require.NoError(t, err)
		assert.Nil(t, updated.AssigneeID)

		got, err := f.svc.GetTask(ctx, admin, task.ID)
		require.NoError(t, err)
		assert.Nil(t, got.AssigneeID)
		assert.Equal(t, "fix harder", got.Title)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := f.svc.UpdateTask(ctx, member, task.ID, UpdateTaskRequest{Status: ptr(TaskStatus("blocked"))})
		assert.ErrorIs(t, err, rbac.ErrInvalidInput)

		_, err = f.svc.UpdateTask(ctx, member, task.ID, UpdateTaskRequest{AssigneeID: ptr(int64(9999))})
		assert.ErrorIs(t, err, rbac.ErrUserNotFound)
	})
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	member := f.user(t, "member", rbac.SystemRoleUser)
	contractor := f.user(t, "contractor", rbac.SystemRoleUser)

	visible := f.createProject(t, admin, "visible")
	hidden := f.createProject(t, admin, "hidden")
	_, err := f.members.AddMember(ctx, admin, visible.ID, member.UserID, rbac.RoleMember)
	require.NoError(t, err)

	a, err := f.svc.CreateTask(ctx, admin, visible.ID, CreateTaskRequest{Title: "write docs"})
	require.NoError(t, err)
	b, err := f.svc.CreateTask(ctx, admin, visible.ID, CreateTaskRequest{Title: "ship", Status: TaskDone, AssigneeID: &contractor.UserID})
	require.NoError(t, err)
	c, err := f.svc.CreateTask(ctx, admin, hidden.ID, CreateTaskRequest{Title: "secret docs", AssigneeID: &contractor.UserID})
	require.NoError(t, err)
	_, err = f.svc.CreateTask(ctx, admin, hidden.ID, CreateTaskRequest{Title: "other secret"})
	require.NoError(t, err)

	t.Run("member sees project tasks", func(t *testing.T) {
		tasks, total, err := f.svc.ListTasks(ctx, member, TaskFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, []int64{b.ID, a.ID}, taskIDs(tasks))
	})

	t.Run("assignee sees assigned tasks only", func(t *testing.T) {
		tasks, total, err := f.svc.ListTasks(ctx, contractor, TaskFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, []int64{c.ID, b.ID}, taskIDs(tasks))
	})

	t.Run("filters", func(t *testing.T) {
		tasks, _, err := f.svc.ListTasks(ctx, admin, TaskFilter{Search: "docs"})
		require.NoError(t, err)
		assert.Equal(t, []int64{c.ID, a.ID}, taskIDs(tasks))

		tasks, _, err = f.svc.ListTasks(ctx, admin, TaskFilter{ProjectID: &visible.ID, Status: TaskDone})
		require.NoError(t, err)
		assert.Equal(t, []int64{b.ID}, taskIDs(tasks))

		tasks, _, err = f.svc.ListTasks(ctx, member, TaskFilter{AssigneeID: &contractor.UserID})
		require.NoError(t, err)
		assert.Equal(t, []int64{b.ID}, taskIDs(tasks))
	})

	t.Run("archived project hides assigned tasks", func(t *testing.T) {
		require.NoError(t, f.svc.ArchiveProject(ctx, admin, hidden.ID))
		tasks, _, err := f.svc.ListTasks(ctx, contractor, TaskFilter{})
		require.NoError(t, err)
		assert.Equal(t, []int64{b.ID}, taskIDs(tasks))
	})
}

func TestSQLService_DatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := rbac.NewStore(db)
	svc := NewSQLService(db, rbac.NewGate(rbac.NewResolver(store, store)), store, nil)
	admin := rbac.Subject{UserID: 1, SystemRole: rbac.SystemRoleAdmin, Active: true}
	boom := errors.New("connection reset")

	t.Run("list count", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM projects p").WillReturnError(boom)
		_, _, err := svc.ListProjects(context.Background(), admin, ProjectFilter{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("stats", func(t *testing.T) {
		mock.ExpectQuery("SELECT p.status, COUNT\\(\\*\\) FROM projects p GROUP BY p.status").WillReturnError(boom)
		_, err := svc.ProjectStats(context.Background(), admin)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("load task", func(t *testing.T) {
		mock.ExpectQuery("SELECT t.id, t.project_id").WithArgs(int64(7)).WillReturnError(boom)
		_, err := svc.GetTask(context.Background(), admin, 7)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("task not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT t.id, t.project_id").WithArgs(int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		_, err := svc.GetTask(context.Background(), admin, 8)
		assert.ErrorIs(t, err, rbac.ErrTaskNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
