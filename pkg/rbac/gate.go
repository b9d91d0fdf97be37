package rbac

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/platinummonkey/taskboard/pkg/audit"
)

// Gate names reported to the Recorder and the audit log
const (
	GateSystemRole        = "system_role"
	GateProjectRole       = "project_role"
	GateExactProjectRole  = "exact_project_role"
	GateCreateProject     = "create_project"
	GateCreateTask        = "create_task"
	GateManageMembers     = "manage_members"
	GateUpdateMemberRoles = "update_member_roles"
	GateTaskAccess        = "task_access"
)

// Decision outcomes reported to the Recorder
const (
	OutcomeAllowed      = "allowed"
	OutcomeUnauthorized = "unauthorized"
	OutcomeForbidden    = "forbidden"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

// Recorder receives authorization and membership metrics
type Recorder interface {
	RecordAuthzDecision(gate, outcome string)
	RecordMembershipOperation(operation, status string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthzDecision(string, string)       {}
func (noopRecorder) RecordMembershipOperation(string, string) {}

// Gate makes request-time authorization decisions
type Gate struct {
	resolver        *Resolver
	projectCreators []SystemRole
	auditLogger     audit.Logger
	recorder        Recorder
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithProjectCreators sets the system roles allowed to create projects.
// Membership in the list is exact; rank is not considered.
func WithProjectCreators(roles ...SystemRole) GateOption {
	return func(g *Gate) {
		g.projectCreators = append([]SystemRole(nil), roles...)
	}
}

// WithAuditLogger sets the sink for denied decisions
func WithAuditLogger(logger audit.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.auditLogger = logger
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(recorder Recorder) GateOption {
	return func(g *Gate) {
		if recorder != nil {
			g.recorder = recorder
		}
	}
}

// NewGate creates a new gate. Only system ADMIN may create projects unless
// WithProjectCreators says otherwise.
func NewGate(resolver *Resolver, opts ...GateOption) *Gate {
	g := &Gate{
		resolver:        resolver,
		projectCreators: []SystemRole{SystemRoleAdmin},
		auditLogger:     audit.NoOpLogger{},
		recorder:        noopRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolver returns the resolver behind the gate
func (g *Gate) Resolver() *Resolver {
	return g.resolver
}

// ProjectCreators returns the system roles allowed to create projects
func (g *Gate) ProjectCreators() []SystemRole {
	return append([]SystemRole(nil), g.projectCreators...)
}

// RequireSystemRole checks subject's system role against min
func (g *Gate) RequireSystemRole(ctx context.Context, subject Subject, min SystemRole) error {
	err := checkSystemRole(subject, min)
	return g.decide(ctx, GateSystemRole, subject, 0, err)
}

// RequireProjectRole requires an effective role of at least min. No
// standing fails with ErrUnauthorized, too little with ErrForbidden.
func (g *Gate) RequireProjectRole(ctx context.Context, subject Subject, projectID int64, min ProjectRole) (Resolution, error) {
	res, err := g.checkProjectRole(ctx, subject, projectID, func(role ProjectRole) error {
		if role == RoleNone || !role.AtLeast(min) {
			return forbidden(min)
		}
		return nil
	})
	return res, g.decide(ctx, GateProjectRole, subject, projectID, err)
}

// RequireExactProjectRole requires an effective role equal to role
func (g *Gate) RequireExactProjectRole(ctx context.Context, subject Subject, projectID int64, role ProjectRole) (Resolution, error) {
	res, err := g.checkProjectRole(ctx, subject, projectID, exactly(role))
	return res, g.decide(ctx, GateExactProjectRole, subject, projectID, err)
}

// CanCreateProject checks the subject's system role against the project
// creator allowlist
func (g *Gate) CanCreateProject(ctx context.Context, subject Subject) error {
	var err error
	switch {
	case !subject.Active:
		err = ErrUnauthorized
	case !g.isProjectCreator(subject.SystemRole):
		err = &ForbiddenError{Required: g.creatorLabels()}
	}
	return g.decide(ctx, GateCreateProject, subject, 0, err)
}

// CanCreateTask requires any active system role and MEMBER standing on the
// project
func (g *Gate) CanCreateTask(ctx context.Context, subject Subject, projectID int64) (Resolution, error) {
	var res Resolution
	err := checkSystemRole(subject, SystemRoleUser)
	if err == nil {
		res, err = g.checkProjectRole(ctx, subject, projectID, func(role ProjectRole) error {
			if !role.AtLeast(RoleMember) {
				return forbidden(RoleMember)
			}
			return nil
		})
	}
	return res, g.decide(ctx, GateCreateTask, subject, projectID, err)
}

// CanManageMembers allows system MANAGER and ADMIN on any live project, and
// otherwise requires an effective role of OWNER or project ADMIN
func (g *Gate) CanManageMembers(ctx context.Context, subject Subject, projectID int64) (Resolution, error) {
	privileged := subject.SystemRole.AtLeast(SystemRoleManager)
	res, err := g.checkProjectRole(ctx, subject, projectID, func(role ProjectRole) error {
		if privileged || role == RoleOwner || role == RoleAdmin {
			return nil
		}
		return forbidden(RoleAdmin)
	})
	return res, g.decide(ctx, GateManageMembers, subject, projectID, err)
}

// CanUpdateMemberRoles requires an effective role of exactly OWNER
func (g *Gate) CanUpdateMemberRoles(ctx context.Context, subject Subject, projectID int64) (Resolution, error) {
	res, err := g.checkProjectRole(ctx, subject, projectID, exactly(RoleOwner))
	return res, g.decide(ctx, GateUpdateMemberRoles, subject, projectID, err)
}

// RequireTaskAccess lets a task's assignee through unconditionally and
// requires min on the task's project from everyone else. The returned
// resolution carries the subject's project standing, which may be
// RoleNone for an assignee.
func (g *Gate) RequireTaskAccess(ctx context.Context, subject Subject, projectID int64, assigneeID *int64, min ProjectRole) (Resolution, error) {
	assignee := assigneeID != nil && *assigneeID == subject.UserID
	res, err := g.checkProjectRole(ctx, subject, projectID, func(role ProjectRole) error {
		if assignee || role.AtLeast(min) {
			return nil
		}
		return forbidden(min)
	})
	return res, g.decide(ctx, GateTaskAccess, subject, projectID, err)
}

// checkProjectRole resolves the subject and applies check. A subject with
// no standing whom check rejects is unauthorized rather than forbidden.
func (g *Gate) checkProjectRole(ctx context.Context, subject Subject, projectID int64, check func(ProjectRole) error) (Resolution, error) {
	if !subject.Active {
		return Resolution{Role: RoleNone, Source: SourceNone}, ErrUnauthorized
	}

	res, err := g.resolver.Resolve(ctx, subject, projectID)
	if err != nil {
		return res, err
	}
	if res.Role == RoleNone {
		if cerr := check(RoleNone); cerr == nil {
			return res, nil
		}
		return res, ErrUnauthorized
	}
	return res, check(res.Role)
}

func checkSystemRole(subject Subject, min SystemRole) error {
	if !subject.Active {
		return ErrUnauthorized
	}
	if !subject.SystemRole.AtLeast(min) {
		return forbidden(min)
	}
	return nil
}

func exactly(want ProjectRole) func(ProjectRole) error {
	return func(role ProjectRole) error {
		if role != want {
			return forbidden(want)
		}
		return nil
	}
}

func (g *Gate) isProjectCreator(role SystemRole) bool {
	for _, allowed := range g.projectCreators {
		if role == allowed {
			return true
		}
	}
	return false
}

func (g *Gate) creatorLabels() string {
	labels := make([]string, len(g.projectCreators))
	for i, role := range g.projectCreators {
		labels[i] = string(role)
	}
	return "one of [" + strings.Join(labels, ", ") + "]"
}

// decide records the outcome and audits denials; err is returned unchanged
func (g *Gate) decide(ctx context.Context, gate string, subject Subject, projectID int64, err error) error {
	outcome := outcomeOf(err)
	g.recorder.RecordAuthzDecision(gate, outcome)

	if outcome == OutcomeUnauthorized || outcome == OutcomeForbidden {
		event := audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied).
			WithActor(subject.UserID).
			WithError(err).
			With("gate", gate).
			With("system_role", string(subject.SystemRole))
		if projectID != 0 {
			event.WithProject(projectID).WithResource(audit.ResourceTypeProject, strconv.FormatInt(projectID, 10))
		}
		// Audit failures never change the decision
		_ = g.auditLogger.Log(ctx, event)
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeAllowed
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	case IsNotFound(err):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
