package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/storage"
)

// Membership operations reported to the Recorder
const (
	OpAddMember         = "add"
	OpUpdateMemberRole  = "update_role"
	OpRemoveMember      = "remove"
	OpLeaveProject      = "leave"
	OpTransferOwnership = "transfer_ownership"
)

// MembershipManager runs the membership lifecycle. It guarantees that a
// project's OWNER row can only change hands through TransferOwnership.
type MembershipManager struct {
	gate  *Gate
	store Store
	tx    storage.TxManager
	now   func() time.Time
}

// NewMembershipManager creates a new membership manager. Audit and metrics
// go to the gate's sinks.
func NewMembershipManager(gate *Gate, store Store, tx storage.TxManager) *MembershipManager {
	return &MembershipManager{
		gate:  gate,
		store: store,
		tx:    tx,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// AddMember adds userID to the project with role. OWNER cannot be granted
// this way.
func (m *MembershipManager) AddMember(ctx context.Context, actor Subject, projectID, userID int64, role ProjectRole) (*Membership, error) {
	membership, err := m.addMember(ctx, actor, projectID, userID, role)
	m.finish(ctx, OpAddMember, audit.EventTypeMembershipAdd, actor, projectID, userID, err, func(e *audit.AuditEvent) {
		e.With("role", string(role))
	})
	return membership, err
}

func (m *MembershipManager) addMember(ctx context.Context, actor Subject, projectID, userID int64, role ProjectRole) (*Membership, error) {
	if _, err := m.gate.CanManageMembers(ctx, actor, projectID); err != nil {
		return nil, err
	}

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, string(role))
	}
	if role == RoleOwner {
		return nil, invalidOperation("ownership can only be transferred")
	}

	target, err := m.store.GetSubject(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !target.Active {
		return nil, ErrUserNotFound
	}

	_, err = m.store.GetActiveMembership(ctx, projectID, userID)
	if err == nil {
		return nil, ErrMemberExists
	}
	if !errors.Is(err, ErrMemberNotFound) {
		return nil, err
	}

	addedBy := actor.UserID
	membership := &Membership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  m.now(),
		AddedBy:   &addedBy,
	}
	if err := m.store.InsertMembership(ctx, membership); err != nil {
		return nil, err
	}
	return membership, nil
}

// UpdateMemberRole changes a member's role. Only the project OWNER may do
// this, and neither the OWNER's row nor the OWNER role is reachable.
func (m *MembershipManager) UpdateMemberRole(ctx context.Context, actor Subject, projectID, userID int64, role ProjectRole) (*Membership, error) {
	var previous ProjectRole
	membership, err := m.updateMemberRole(ctx, actor, projectID, userID, role, &previous)
	m.finish(ctx, OpUpdateMemberRole, audit.EventTypeMembershipRoleChange, actor, projectID, userID, err, func(e *audit.AuditEvent) {
		e.With("role", string(role))
		if previous != RoleNone {
			e.With("previous_role", string(previous))
		}
	})
	return membership, err
}

func (m *MembershipManager) updateMemberRole(ctx context.Context, actor Subject, projectID, userID int64, role ProjectRole, previous *ProjectRole) (*Membership, error) {
	if _, err := m.gate.CanUpdateMemberRoles(ctx, actor, projectID); err != nil {
		return nil, err
	}

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, string(role))
	}
	if role == RoleOwner {
		return nil, invalidOperation("ownership can only be transferred")
	}

	membership, err := m.store.GetActiveMembership(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if membership.Role == RoleOwner {
		return nil, invalidOperation("cannot change the project owner's role")
	}

	*previous = membership.Role
	if err := m.store.UpdateMembershipRole(ctx, membership.ID, role); err != nil {
		return nil, err
	}
	membership.Role = role
	return membership, nil
}

// RemoveMember deactivates a member's row. The OWNER cannot be removed.
func (m *MembershipManager) RemoveMember(ctx context.Context, actor Subject, projectID, userID int64) error {
	err := m.removeMember(ctx, actor, projectID, userID)
	m.finish(ctx, OpRemoveMember, audit.EventTypeMembershipRemove, actor, projectID, userID, err, nil)
	return err
}

func (m *MembershipManager) removeMember(ctx context.Context, actor Subject, projectID, userID int64) error {
	if _, err := m.gate.CanManageMembers(ctx, actor, projectID); err != nil {
		return err
	}
	return m.deactivate(ctx, projectID, userID, "the project owner cannot be removed")
}

// LeaveProject removes the actor's own membership. The OWNER cannot leave
// without transferring ownership first.
func (m *MembershipManager) LeaveProject(ctx context.Context, actor Subject, projectID int64) error {
	err := m.leaveProject(ctx, actor, projectID)
	m.finish(ctx, OpLeaveProject, audit.EventTypeMembershipLeave, actor, projectID, actor.UserID, err, nil)
	return err
}

func (m *MembershipManager) leaveProject(ctx context.Context, actor Subject, projectID int64) error {
	if !actor.Active {
		return ErrUnauthorized
	}
	if _, err := m.store.GetProjectRef(ctx, projectID); err != nil {
		return err
	}
	return m.deactivate(ctx, projectID, actor.UserID, "the project owner must transfer ownership before leaving")
}

func (m *MembershipManager) deactivate(ctx context.Context, projectID, userID int64, ownerReason string) error {
	membership, err := m.store.GetActiveMembership(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if membership.Role == RoleOwner {
		return invalidOperation(ownerReason)
	}
	return m.store.DeactivateMembership(ctx, membership.ID, m.now())
}

// TransferOwnership hands the OWNER role to another active member. The
// previous owner stays on as ADMIN. Role swap and project owner update
// commit together.
func (m *MembershipManager) TransferOwnership(ctx context.Context, actor Subject, projectID, toUserID int64) (*Membership, error) {
	var previousOwner int64
	membership, err := m.transferOwnership(ctx, actor, projectID, toUserID, &previousOwner)
	m.finish(ctx, OpTransferOwnership, audit.EventTypeOwnershipTransfer, actor, projectID, toUserID, err, func(e *audit.AuditEvent) {
		if previousOwner != 0 {
			e.With("previous_owner_id", previousOwner)
		}
	})
	return membership, err
}

func (m *MembershipManager) transferOwnership(ctx context.Context, actor Subject, projectID, toUserID int64, previousOwner *int64) (*Membership, error) {
	if _, err := m.gate.RequireExactProjectRole(ctx, actor, projectID, RoleOwner); err != nil {
		return nil, err
	}

	var newOwner *Membership
	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		target, err := m.store.GetSubject(ctx, toUserID)
		if err != nil {
			return err
		}
		if !target.Active {
			return ErrUserNotFound
		}

		membership, err := m.store.GetActiveMembership(ctx, projectID, toUserID)
		if err != nil {
			return err
		}
		if membership.Role == RoleOwner {
			return invalidOperation("user already owns the project")
		}

		// Projects created before owner rows were materialized have none
		current, err := m.store.GetOwnerMembership(ctx, projectID)
		switch {
		case err == nil:
			*previousOwner = current.UserID
			// Demote first so the single-owner index never sees two owners
			if err := m.store.UpdateMembershipRole(ctx, current.ID, RoleAdmin); err != nil {
				return err
			}
		case !errors.Is(err, ErrMemberNotFound):
			return err
		}

		if err := m.store.UpdateMembershipRole(ctx, membership.ID, RoleOwner); err != nil {
			return err
		}
		if err := m.store.SetProjectOwner(ctx, projectID, toUserID); err != nil {
			return err
		}

		membership.Role = RoleOwner
		newOwner = membership
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newOwner, nil
}

// ListMembers returns the project's active members, oldest first. Any
// standing on the project is enough.
func (m *MembershipManager) ListMembers(ctx context.Context, actor Subject, projectID int64) ([]Membership, error) {
	if _, err := m.gate.RequireProjectRole(ctx, actor, projectID, RoleViewer); err != nil {
		return nil, err
	}
	return m.store.ListActiveMemberships(ctx, projectID)
}

// finish records the operation and audits successful mutations. It runs
// after any transaction has been released.
func (m *MembershipManager) finish(ctx context.Context, op string, eventType audit.EventType, actor Subject, projectID, targetID int64, err error, decorate func(*audit.AuditEvent)) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		status = "denied"
	default:
		status = "failure"
	}
	m.gate.recorder.RecordMembershipOperation(op, status)

	// Denials are already audited by the gate
	if err != nil {
		return
	}

	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess).
		WithActor(actor.UserID).
		WithProject(projectID).
		WithResource(audit.ResourceTypeMembership, strconv.FormatInt(targetID, 10))
	if decorate != nil {
		decorate(event)
	}
	_ = m.gate.auditLogger.Log(ctx, event)
}
