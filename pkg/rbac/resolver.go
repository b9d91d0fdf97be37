package rbac

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/platinummonkey/taskboard/pkg/rbac"

// Source records which rule produced an effective role
type Source string

const (
	SourceSystemAdmin      Source = "system_admin"
	SourceMembership       Source = "membership"
	SourceLegacyOwnerGrant Source = "legacy_owner_grant"
	SourceNone             Source = "none"
)

// Resolution is the outcome of resolving a subject against a project
type Resolution struct {
	Role   ProjectRole
	Source Source

	// Project is set whenever the project exists
	Project *ProjectRef
	// Membership is set when Source is SourceMembership
	Membership *Membership
}

// Resolver computes a subject's effective role on a project. It reads
// current state on every call.
type Resolver struct {
	projects         ProjectLookup
	members          MembershipStore
	legacyOwnerGrant bool

	tracer      trace.Tracer
	resolutions metric.Int64Counter
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithLegacyOwnerGrant toggles the rule that gives a MANAGER who owns or
// created a project ADMIN standing on it without a membership row. It is
// on by default.
func WithLegacyOwnerGrant(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.legacyOwnerGrant = enabled
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) ResolverOption {
	return func(r *Resolver) {
		r.tracer = tp.Tracer(instrumentationName)
	}
}

// NewResolver creates a new resolver
func NewResolver(projects ProjectLookup, members MembershipStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		projects:         projects,
		members:          members,
		legacyOwnerGrant: true,
		tracer:           otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"taskboard.rbac.resolutions",
		metric.WithDescription("Effective role resolutions by rule"),
	)
	if err != nil {
		otel.Handle(err)
	}
	r.resolutions = counter
	return r
}

// LegacyOwnerGrant reports whether the legacy owner grant is enabled
func (r *Resolver) LegacyOwnerGrant() bool {
	return r.legacyOwnerGrant
}

// Resolve returns the effective role of subject on projectID. The first
// matching rule wins:
//
//  1. system ADMIN resolves to OWNER, including on archived projects
//  2. an active membership resolves to its role
//  3. a MANAGER who owns or created the project resolves to ADMIN, while
//     the legacy owner grant is enabled
//  4. anything else resolves to RoleNone
//
// Unknown projects fail with ErrProjectNotFound, as do archived projects
// for everyone but ADMIN. Inactive subjects resolve to RoleNone.
func (r *Resolver) Resolve(ctx context.Context, subject Subject, projectID int64) (Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "rbac.Resolve", trace.WithAttributes(
		attribute.Int64("taskboard.project_id", projectID),
		attribute.Int64("taskboard.user_id", subject.UserID),
		attribute.String("taskboard.system_role", string(subject.SystemRole)),
	))
	defer span.End()

	res, err := r.resolve(ctx, subject, projectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	span.SetAttributes(
		attribute.String("taskboard.project_role", res.Role.String()),
		attribute.String("taskboard.role_source", string(res.Source)),
	)
	if r.resolutions != nil {
		r.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(res.Source))))
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, subject Subject, projectID int64) (Resolution, error) {
	none := Resolution{Role: RoleNone, Source: SourceNone}

	project, err := r.projects.GetProjectRef(ctx, projectID)
	if err != nil {
		return none, err
	}
	none.Project = project

	if !subject.Active {
		return none, nil
	}

	if subject.SystemRole == SystemRoleAdmin {
		return Resolution{Role: RoleOwner, Source: SourceSystemAdmin, Project: project}, nil
	}

	if !project.Active {
		return Resolution{Role: RoleNone, Source: SourceNone}, ErrProjectNotFound
	}

	membership, err := r.members.GetActiveMembership(ctx, projectID, subject.UserID)
	switch {
	case err == nil:
		return Resolution{Role: membership.Role, Source: SourceMembership, Project: project, Membership: membership}, nil
	case !errors.Is(err, ErrMemberNotFound):
		return none, err
	}

	if r.legacyOwnerGrant && subject.SystemRole == SystemRoleManager &&
		(project.OwnerID == subject.UserID || project.CreatorID == subject.UserID) {
		return Resolution{Role: RoleAdmin, Source: SourceLegacyOwnerGrant, Project: project}, nil
	}

	return none, nil
}
