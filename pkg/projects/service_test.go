package projects

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/storage"
	"github.com/platinummonkey/taskboard/pkg/storage/sqlitetest"
)

type fixture struct {
	db      *sql.DB
	svc     *SQLService
	members *rbac.MembershipManager
	audit   *audit.DBLogger
}

func newFixture(t *testing.T, opts ...rbac.GateOption) *fixture {
	t.Helper()

	db := sqlitetest.NewDB(t)
	store := rbac.NewStore(db)
	gate := rbac.NewGate(rbac.NewResolver(store, store), opts...)
	auditLogger := audit.NewDBLogger(db)

	return &fixture{
		db:      db,
		svc:     NewSQLService(db, gate, store, auditLogger),
		members: rbac.NewMembershipManager(gate, store, storage.NewTxManager(db)),
		audit:   auditLogger,
	}
}

func (f *fixture) user(t *testing.T, name string, role rbac.SystemRole) rbac.Subject {
	t.Helper()
	id := sqlitetest.InsertUser(t, f.db, name, string(role))
	return rbac.Subject{UserID: id, SystemRole: role, Active: true}
}

func (f *fixture) createProject(t *testing.T, actor rbac.Subject, name string) *Project {
	t.Helper()
	project, err := f.svc.CreateProject(context.Background(), actor, CreateProjectRequest{Name: name})
	require.NoError(t, err)
	return project
}

func projectIDs(projects []*Project) []int64 {
	ids := make([]int64, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestCreateProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)

	project, err := f.svc.CreateProject(ctx, admin, CreateProjectRequest{Name: "  Apollo  ", Description: "moon"})
	require.NoError(t, err)
	assert.NotZero(t, project.ID)
	assert.Equal(t, "Apollo", project.Name)
	assert.Equal(t, StatusPlanning, project.Status)
	assert.Equal(t, admin.UserID, project.OwnerID)
	assert.Equal(t, admin.UserID, project.CreatorID)
	assert.True(t, project.Active)

	assert.Equal(t, 1, sqlitetest.CountActiveMemberships(t, f.db, project.ID, string(rbac.RoleOwner)))

	events, err := f.audit.ListByProject(ctx, project.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeProjectCreate, events[0].EventType)
}

func TestCreateProject_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	manager := f.user(t, "manager", rbac.SystemRoleManager)
	plain := f.user(t, "plain", rbac.SystemRoleUser)

	t.Run("default allowlist is admin only", func(t *testing.T) {
		_, err := f.svc.CreateProject(ctx, manager, CreateProjectRequest{Name: "x"})
		assert.ErrorIs(t, err, rbac.ErrForbidden)

		_, err = f.svc.CreateProject(ctx, plain, CreateProjectRequest{Name: "x"})
		assert.ErrorIs(t, err, rbac.ErrForbidden)
	})

	t.Run("inactive caller", func(t *testing.T) {
		inactive := admin
		inactive.Active = false
		_, err := f.svc.CreateProject(ctx, inactive, CreateProjectRequest{Name: "x"})
		assert.ErrorIs(t, err, rbac.ErrUnauthorized)
	})

	t.Run("admin designates owner", func(t *testing.T) {
		owner := manager.UserID
		project, err := f.svc.CreateProject(ctx, admin, CreateProjectRequest{Name: "delegated", OwnerID: &owner})
		require.NoError(t, err)
		assert.Equal(t, manager.UserID, project.OwnerID)
		assert.Equal(t, admin.UserID, project.CreatorID)

		res, err := f.svc.gate.Resolver().Resolve(ctx, manager, project.ID)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleOwner, res.Role)
		assert.Equal(t, rbac.SourceMembership, res.Source)
	})

	t.Run("unknown owner rolls back", func(t *testing.T) {
		owner := int64(9999)
		_, err := f.svc.CreateProject(ctx, admin, CreateProjectRequest{Name: "ghost", OwnerID: &owner})
		assert.ErrorIs(t, err, rbac.ErrUserNotFound)

		var count int
		require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM projects WHERE name = 'ghost'`).Scan(&count))
		assert.Zero(t, count)
	})
}

func TestCreateProject_DesignatedOwnerRequiresAdmin(t *testing.T) {
	f := newFixture(t, rbac.WithProjectCreators(rbac.SystemRoleManager, rbac.SystemRoleAdmin))
	manager := f.user(t, "manager", rbac.SystemRoleManager)
	other := f.user(t, "other", rbac.SystemRoleUser)

	owner := other.UserID
	_, err := f.svc.CreateProject(context.Background(), manager, CreateProjectRequest{Name: "x", OwnerID: &owner})
	assert.ErrorIs(t, err, rbac.ErrForbidden)

	self := manager.UserID
	project, err := f.svc.CreateProject(context.Background(), manager, CreateProjectRequest{Name: "mine", OwnerID: &self})
	require.NoError(t, err)
	assert.Equal(t, manager.UserID, project.OwnerID)
}

func TestCreateProject_Validation(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name string
		req  CreateProjectRequest
	}{
		{"empty name", CreateProjectRequest{Name: "   "}},
		{"long name", CreateProjectRequest{Name: string(long)}},
		{"unknown status", CreateProjectRequest{Name: "x", Status: "paused"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateProject(context.Background(), admin, tt.req)
			assert.ErrorIs(t, err, rbac.ErrInvalidInput)
		})
	}
}

func TestGetAndUpdateProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	viewer := f.user(t, "viewer", rbac.SystemRoleUser)
	stranger := f.user(t, "stranger", rbac.SystemRoleUser)
	project := f.createProject(t, admin, "Gemini")

	_, err := f.members.AddMember(ctx, admin, project.ID, viewer.UserID, rbac.RoleViewer)
	require.NoError(t, err)

	got, err := f.svc.GetProject(ctx, viewer, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gemini", got.Name)

	_, err = f.svc.GetProject(ctx, stranger, project.ID)
	assert.ErrorIs(t, err, rbac.ErrUnauthorized)

	_, err = f.svc.GetProject(ctx, viewer, 9999)
	assert.ErrorIs(t, err, rbac.ErrProjectNotFound)

	name := "Gemini II"
	_, err = f.svc.UpdateProject(ctx, viewer, project.ID, UpdateProjectRequest{Name: &name})
	assert.ErrorIs(t, err, rbac.ErrForbidden)

	status := StatusActive
	updated, err := f.svc.UpdateProject(ctx, admin, project.ID, UpdateProjectRequest{Name: &name, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, StatusActive, updated.Status)

	bad := Status("paused")
	_, err = f.svc.UpdateProject(ctx, admin, project.ID, UpdateProjectRequest{Status: &bad})
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)
}

func TestArchiveProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	owner := f.user(t, "owner", rbac.SystemRoleManager)
	member := f.user(t, "member", rbac.SystemRoleUser)

	ownerID := owner.UserID
	project, err := f.svc.CreateProject(ctx, admin, CreateProjectRequest{Name: "Mercury", OwnerID: &ownerID})
	require.NoError(t, err)
	_, err = f.members.AddMember(ctx, owner, project.ID, member.UserID, rbac.RoleAdmin)
	require.NoError(t, err)

	// project ADMIN is not enough, and system ADMIN resolves to OWNER
	assert.ErrorIs(t, f.svc.ArchiveProject(ctx, member, project.ID), rbac.ErrForbidden)
	require.NoError(t, f.svc.ArchiveProject(ctx, owner, project.ID))

	_, err = f.svc.GetProject(ctx, owner, project.ID)
	assert.ErrorIs(t, err, rbac.ErrProjectNotFound)

	got, err := f.svc.GetProject(ctx, admin, project.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	list, _, err := f.svc.ListProjects(ctx, member, ProjectFilter{})
	require.NoError(t, err)
	assert.NotContains(t, projectIDs(list), project.ID)
}

func TestListProjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	alice := f.user(t, "alice", rbac.SystemRoleUser)

	alpha := f.createProject(t, admin, "Alpha_1")
	beta := f.createProject(t, admin, "Beta 100%")
	gamma := f.createProject(t, admin, "Gamma")

	_, err := f.members.AddMember(ctx, admin, alpha.ID, alice.UserID, rbac.RoleMember)
	require.NoError(t, err)
	_, err = f.members.AddMember(ctx, admin, beta.ID, alice.UserID, rbac.RoleViewer)
	require.NoError(t, err)

	sqlitetest.InsertTask(t, f.db, alpha.ID, admin.UserID, 0, "one", string(TaskDone))
	sqlitetest.InsertTask(t, f.db, alpha.ID, admin.UserID, 0, "two", string(TaskTodo))
	sqlitetest.InsertTask(t, f.db, alpha.ID, admin.UserID, 0, "three", string(TaskTodo))

	t.Run("member sees own projects newest first", func(t *testing.T) {
		list, total, err := f.svc.ListProjects(ctx, alice, ProjectFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, []int64{beta.ID, alpha.ID}, projectIDs(list))

		assert.Equal(t, 3, list[1].TaskCount)
		assert.Equal(t, 1, list[1].CompletedTasks)
		assert.Equal(t, 33.3, list[1].CompletionPercent)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		list, total, err := f.svc.ListProjects(ctx, admin, ProjectFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []int64{gamma.ID, beta.ID, alpha.ID}, projectIDs(list))
	})

	t.Run("search escapes wildcards", func(t *testing.T) {
		list, _, err := f.svc.ListProjects(ctx, admin, ProjectFilter{Search: "a_1"})
		require.NoError(t, err)
		assert.Equal(t, []int64{alpha.ID}, projectIDs(list))

		list, _, err = f.svc.ListProjects(ctx, admin, ProjectFilter{Search: "100%"})
		require.NoError(t, err)
		assert.Equal(t, []int64{beta.ID}, projectIDs(list))

		list, _, err = f.svc.ListProjects(ctx, alice, ProjectFilter{Search: "gamma"})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("status filter and paging", func(t *testing.T) {
		list, total, err := f.svc.ListProjects(ctx, admin, ProjectFilter{Status: StatusPlanning, Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []int64{beta.ID}, projectIDs(list))

		list, total, err = f.svc.ListProjects(ctx, admin, ProjectFilter{Status: StatusCompleted})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, list)
	})

	t.Run("inactive caller sees nothing", func(t *testing.T) {
		inactive := alice
		inactive.Active = false
		list, total, err := f.svc.ListProjects(ctx, inactive, ProjectFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, list)
	})
}

func TestProjectStats_OnlyVisibleRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin", rbac.SystemRoleAdmin)
	alice := f.user(t, "alice", rbac.SystemRoleUser)
	bob := f.user(t, "bob", rbac.SystemRoleUser)

	shared := f.createProject(t, admin, "shared")
	private := f.createProject(t, admin, "private")
	_, err := f.members.AddMember(ctx, admin, shared.ID, alice.UserID, rbac.RoleMember)
	require.NoError(t, err)
	_, err = f.members.AddMember(ctx, admin, private.ID, bob.UserID, rbac.RoleMember)
	require.NoError(t, err)

	sqlitetest.InsertTask(t, f.db, shared.ID, admin.UserID, 0, "s1", string(TaskDone))
	sqlitetest.InsertTask(t, f.db, shared.ID, admin.UserID, 0, "s2", string(TaskTodo))
	for i := 0; i < 5; i++ {
		sqlitetest.InsertTask(t, f.db, private.ID, admin.UserID, 0, "p", string(TaskDone))
	}

	// concurrent readers never see each other's rows
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			stats, err := f.svc.ProjectStats(ctx, alice)
			if err != nil {
				return err
			}
			assert.Equal(t, 1, stats.TotalProjects)
			assert.Equal(t, 2, stats.TotalTasks)
			assert.Equal(t, 1, stats.CompletedTasks)
			assert.Equal(t, 50.0, stats.CompletionPercent)
			return nil
		})
		g.Go(func() error {
			list, _, err := f.svc.ListProjects(ctx, bob, ProjectFilter{})
			if err != nil {
				return err
			}
			assert.Equal(t, []int64{private.ID}, projectIDs(list))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stats, err := f.svc.ProjectStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalProjects)
	assert.Equal(t, 2, stats.ByStatus[StatusPlanning])
	assert.Equal(t, 7, stats.TotalTasks)
	assert.Equal(t, 6, stats.CompletedTasks)

	stranger := f.user(t, "stranger", rbac.SystemRoleUser)
	stats, err = f.svc.ProjectStats(ctx, stranger)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalProjects)
	assert.Zero(t, stats.TotalTasks)
	assert.Zero(t, stats.CompletionPercent)
}

func TestManagerProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, rbac.WithProjectCreators(rbac.SystemRoleManager, rbac.SystemRoleAdmin))
	m := f.user(t, "m", rbac.SystemRoleManager)
	a := f.user(t, "a", rbac.SystemRoleAdmin)
	v := f.user(t, "v", rbac.SystemRoleUser)
	someone := f.user(t, "someone", rbac.SystemRoleUser)

	project := f.createProject(t, m, "p")
	_, err := f.members.AddMember(ctx, m, project.ID, someone.UserID, rbac.RoleMember)
	require.NoError(t, err)

	_, err = f.members.AddMember(ctx, a, project.ID, v.UserID, rbac.RoleViewer)
	require.NoError(t, err)
	list, _, err := f.svc.ListProjects(ctx, v, ProjectFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{project.ID}, projectIDs(list))

	_, err = f.members.UpdateMemberRole(ctx, m, project.ID, v.UserID, rbac.RoleOwner)
	assert.ErrorIs(t, err, rbac.ErrInvalidOperation)

	assert.ErrorIs(t, f.members.RemoveMember(ctx, v, project.ID, someone.UserID), rbac.ErrForbidden)
	require.NoError(t, f.members.RemoveMember(ctx, m, project.ID, v.UserID))

	list, total, err := f.svc.ListProjects(ctx, v, ProjectFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
	assert.Equal(t, 1, sqlitetest.CountActiveMemberships(t, f.db, project.ID, string(rbac.RoleOwner)))
}
