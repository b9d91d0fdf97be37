// Package rbac decides who may do what to projects and tasks.
//
// Two role hierarchies feed every decision. A user's system role (user,
// manager, admin) is platform-wide; a project role (viewer, member, admin,
// owner) comes from an active row in project_members. The Resolver folds
// both into one effective role per (subject, project):
//
//	res, err := resolver.Resolve(ctx, subject, projectID)
//	if res.Role.AtLeast(rbac.RoleMember) { ... }
//
// The Gate wraps resolution into request-time checks. No standing on a
// project yields ErrUnauthorized, too little standing yields a
// *ForbiddenError naming the required role. Every decision is reported to
// a Recorder and denials are written to the audit log.
//
// Listings do not call the resolver per row. VisibilityFilter renders the
// same rules as SQL predicates with $n placeholders so the database does
// the filtering:
//
//	pred := filter.ProjectPredicate(subject, "p", 1)
//	query := "SELECT ... FROM projects p WHERE " + pred.SQL
//
// MembershipManager owns every change to project_members. Each project
// has exactly one active owner row; AddMember, UpdateMemberRole,
// RemoveMember and LeaveProject all refuse to touch it, and
// TransferOwnership moves it atomically.
//
// Nothing is cached. Each check reads current state through the Store,
// which joins the caller's transaction when ctx carries one.
package rbac
