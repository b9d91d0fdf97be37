package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/storage/sqlitetest"
)

func TestRequireSystemRole(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		subject Subject
		min     SystemRole
		wantErr error
	}{
		{"admin passes manager gate", Subject{UserID: 1, SystemRole: SystemRoleAdmin, Active: true}, SystemRoleManager, nil},
		{"manager passes manager gate", Subject{UserID: 2, SystemRole: SystemRoleManager, Active: true}, SystemRoleManager, nil},
		{"user fails manager gate", Subject{UserID: 3, SystemRole: SystemRoleUser, Active: true}, SystemRoleManager, ErrForbidden},
		{"inactive admin is unauthorized", Subject{UserID: 4, SystemRole: SystemRoleAdmin}, SystemRoleUser, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.gate.RequireSystemRole(ctx, tt.subject, tt.min)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRequireProjectRole(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	owner := e.user(t, "owner", SystemRoleUser)
	viewer := e.user(t, "viewer", SystemRoleUser)
	stranger := e.user(t, "stranger", SystemRoleUser)
	projectID := e.project(t, "alpha", owner)
	sqlitetest.InsertMembership(t, e.db, projectID, viewer.UserID, string(RoleViewer))

	t.Run("sufficient standing", func(t *testing.T) {
		res, err := e.gate.RequireProjectRole(ctx, owner, projectID, RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, RoleOwner, res.Role)
		assert.Equal(t, recordedDecision{GateProjectRole, OutcomeAllowed}, e.recorder.last())
	})

	t.Run("insufficient standing is forbidden", func(t *testing.T) {
		_, err := e.gate.RequireProjectRole(ctx, viewer, projectID, RoleMember)
		require.ErrorIs(t, err, ErrForbidden)

		var fe *ForbiddenError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "member", fe.Required)
		assert.Equal(t, recordedDecision{GateProjectRole, OutcomeForbidden}, e.recorder.last())
	})

	t.Run("no standing is unauthorized", func(t *testing.T) {
		_, err := e.gate.RequireProjectRole(ctx, stranger, projectID, RoleViewer)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.NotErrorIs(t, err, ErrForbidden)
	})

	t.Run("inactive member is unauthorized", func(t *testing.T) {
		inactive := owner
		inactive.Active = false
		_, err := e.gate.RequireProjectRole(ctx, inactive, projectID, RoleViewer)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unknown project", func(t *testing.T) {
		_, err := e.gate.RequireProjectRole(ctx, owner, 4242, RoleViewer)
		assert.ErrorIs(t, err, ErrProjectNotFound)
		assert.Equal(t, recordedDecision{GateProjectRole, OutcomeNotFound}, e.recorder.last())
	})
}

func TestGate_AuditsDenials(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	owner := e.user(t, "owner", SystemRoleUser)
	stranger := e.user(t, "stranger", SystemRoleUser)
	projectID := e.project(t, "alpha", owner)

	_, err := e.gate.RequireProjectRole(ctx, owner, projectID, RoleViewer)
	require.NoError(t, err)
	assert.Empty(t, e.audit.ofType(audit.EventTypeAuthzAccessDenied))

	_, err = e.gate.RequireProjectRole(ctx, stranger, projectID, RoleViewer)
	require.Error(t, err)

	denied := e.audit.ofType(audit.EventTypeAuthzAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, audit.EventStatusDenied, denied[0].Status)
	require.NotNil(t, denied[0].UserID)
	assert.Equal(t, stranger.UserID, *denied[0].UserID)
	require.NotNil(t, denied[0].ProjectID)
	assert.Equal(t, projectID, *denied[0].ProjectID)
	assert.Equal(t, GateProjectRole, denied[0].Metadata["gate"])
}

func TestCanCreateProject(t *testing.T) {
	ctx := context.Background()
	user := Subject{UserID: 1, SystemRole: SystemRoleUser, Active: true}
	manager := Subject{UserID: 2, SystemRole: SystemRoleManager, Active: true}
	admin := Subject{UserID: 3, SystemRole: SystemRoleAdmin, Active: true}

	t.Run("defaults to admin only", func(t *testing.T) {
		gate := NewGate(nil)
		assert.NoError(t, gate.CanCreateProject(ctx, admin))
		assert.ErrorIs(t, gate.CanCreateProject(ctx, manager), ErrForbidden)
		assert.ErrorIs(t, gate.CanCreateProject(ctx, user), ErrForbidden)
	})

	t.Run("allowlist is exact, not by rank", func(t *testing.T) {
		gate := NewGate(nil, WithProjectCreators(SystemRoleManager))
		assert.NoError(t, gate.CanCreateProject(ctx, manager))
		assert.ErrorIs(t, gate.CanCreateProject(ctx, admin), ErrForbidden)

		err := gate.CanCreateProject(ctx, user)
		var fe *ForbiddenError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "one of [manager]", fe.Required)
	})

	t.Run("inactive subject", func(t *testing.T) {
		gate := NewGate(nil)
		inactive := admin
		inactive.Active = false
		assert.ErrorIs(t, gate.CanCreateProject(ctx, inactive), ErrUnauthorized)
	})
}

func TestCanCreateTask(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	owner := e.user(t, "owner", SystemRoleUser)
	member := e.user(t, "member", SystemRoleUser)
	viewer := e.user(t, "viewer", SystemRoleUser)
	stranger := e.user(t, "stranger", SystemRoleUser)
	projectID := e.project(t, "alpha", owner)
	sqlitetest.InsertMembership(t, e.db, projectID, member.UserID, string(RoleMember))
	sqlitetest.InsertMembership(t, e.db, projectID, viewer.UserID, string(RoleViewer))

	_, err := e.gate.CanCreateTask(ctx, member, projectID)
	assert.NoError(t, err)
	_, err = e.gate.CanCreateTask(ctx, owner, projectID)
	assert.NoError(t, err)
	_, err = e.gate.CanCreateTask(ctx, viewer, projectID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = e.gate.CanCreateTask(ctx, stranger, projectID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCanManageMembers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	owner := e.user(t, "owner", SystemRoleUser)
	projectAdmin := e.user(t, "padmin", SystemRoleUser)
	member := e.user(t, "member", SystemRoleUser)
	manager := e.user(t, "manager", SystemRoleManager)
	stranger := e.user(t, "stranger", SystemRoleUser)
	projectID := e.project(t, "alpha", owner)
	sqlitetest.InsertMembership(t, e.db, projectID, projectAdmin.UserID, string(RoleAdmin))
	sqlitetest.InsertMembership(t, e.db, projectID, member.UserID, string(RoleMember))

	for _, s := range []Subject{owner, projectAdmin, manager} {
		_, err := e.gate.CanManageMembers(ctx, s, projectID)
		assert.NoError(t, err, "user %d", s.UserID)
	}

	_, err := e.gate.CanManageMembers(ctx, member, projectID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = e.gate.CanManageMembers(ctx, stranger, projectID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = e.gate.CanManageMembers(ctx, manager, 777)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestCanUpdateMemberRoles(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	owner := e.user(t, "owner", SystemRoleUser)
	projectAdmin := e.user(t, "padmin", SystemRoleUser)
	manager := e.user(t, "manager", SystemRoleManager)
	admin := e.user(t, "admin", SystemRoleAdmin)
	projectID := e.project(t, "alpha", owner)
	sqlitetest.InsertMembership(t, e.db, projectID, projectAdmin.UserID, string(RoleAdmin))

	_, err := e.gate.CanUpdateMemberRoles(ctx, owner, projectID)
	assert.NoError(t, err)
	_, err = e.gate.CanUpdateMemberRoles(ctx, admin, projectID)
	assert.NoError(t, err)

	_, err = e.gate.CanUpdateMemberRoles(ctx, projectAdmin, projectID)
	var fe *ForbiddenError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "owner", fe.Required)

	// The manager short-circuit applies to member management only
	_, err = e.gate.CanUpdateMemberRoles(ctx, manager, projectID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRequireTaskAccess(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	owner := e.user(t, "owner", SystemRoleUser)
	assignee := e.user(t, "assignee", SystemRoleUser)
	stranger := e.user(t, "stranger", SystemRoleUser)
	viewer := e.user(t, "viewer", SystemRoleUser)
	projectID := e.project(t, "alpha", owner)
	sqlitetest.InsertMembership(t, e.db, projectID, viewer.UserID, string(RoleViewer))

	assigneeID := assignee.UserID

	res, err := e.gate.RequireTaskAccess(ctx, assignee, projectID, &assigneeID, RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, res.Role)

	_, err = e.gate.RequireTaskAccess(ctx, stranger, projectID, &assigneeID, RoleViewer)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.gate.RequireTaskAccess(ctx, viewer, projectID, nil, RoleViewer)
	assert.NoError(t, err)
	_, err = e.gate.RequireTaskAccess(ctx, viewer, projectID, nil, RoleMember)
	assert.ErrorIs(t, err, ErrForbidden)
}
