package rbac

import "fmt"

// Predicate is a parameterised SQL boolean expression using $n
// placeholders. An empty SQL means no restriction.
type Predicate struct {
	SQL  string
	Args []interface{}
}

// Empty reports whether the predicate restricts nothing
func (p Predicate) Empty() bool {
	return p.SQL == ""
}

// NextArg returns the placeholder number following the predicate's args
func (p Predicate) NextArg(start int) int {
	return start + len(p.Args)
}

// VisibilityFilter builds the listing predicates that restrict which
// projects and tasks a subject can see
type VisibilityFilter struct {
	legacyOwnerGrant bool
}

// NewVisibilityFilter creates a filter. legacyOwnerGrant must match the
// resolver's setting so listings agree with single-item access.
func NewVisibilityFilter(legacyOwnerGrant bool) *VisibilityFilter {
	return &VisibilityFilter{legacyOwnerGrant: legacyOwnerGrant}
}

const denyAll = "1 = 0"

// ProjectPredicate restricts rows of the projects table aliased as alias.
// The subject's id is bound once as $argN and may appear several times.
//
//   - ADMIN sees everything, archived projects included
//   - MANAGER sees live projects where they hold an OWNER or ADMIN
//     membership, plus those they own or created while the legacy owner
//     grant is enabled
//   - USER sees live projects where they hold any active membership
func (f *VisibilityFilter) ProjectPredicate(subject Subject, alias string, argN int) Predicate {
	if !subject.Active || !subject.SystemRole.Valid() {
		return Predicate{SQL: denyAll}
	}
	if subject.SystemRole == SystemRoleAdmin {
		return Predicate{}
	}
	return Predicate{
		SQL:  f.projectClause(subject.SystemRole, alias, argN),
		Args: []interface{}{subject.UserID},
	}
}

// TaskPredicate restricts rows of the tasks table aliased as alias to tasks
// assigned to the subject or belonging to a project the subject can see.
// Tasks of archived projects are visible to ADMIN only.
func (f *VisibilityFilter) TaskPredicate(subject Subject, alias string, argN int) Predicate {
	if !subject.Active || !subject.SystemRole.Valid() {
		return Predicate{SQL: denyAll}
	}
	if subject.SystemRole == SystemRoleAdmin {
		return Predicate{}
	}

	clause := fmt.Sprintf(`((%[1]s.assignee_id = $%[2]d AND EXISTS (
			SELECT 1 FROM projects va WHERE va.id = %[1]s.project_id AND va.active = TRUE
		)) OR EXISTS (
			SELECT 1 FROM projects vp WHERE vp.id = %[1]s.project_id AND %[3]s
		))`, alias, argN, f.projectClause(subject.SystemRole, "vp", argN))

	return Predicate{SQL: clause, Args: []interface{}{subject.UserID}}
}

func (f *VisibilityFilter) projectClause(role SystemRole, alias string, argN int) string {
	switch role {
	case SystemRoleManager:
		membership := fmt.Sprintf(`EXISTS (
			SELECT 1 FROM project_members vm
			WHERE vm.project_id = %[1]s.id AND vm.user_id = $%[2]d
			  AND vm.active = TRUE AND vm.role IN ('owner', 'admin')
		)`, alias, argN)
		if f.legacyOwnerGrant {
			return fmt.Sprintf(`(%[1]s.active = TRUE AND (%[1]s.owner_id = $%[2]d OR %[1]s.creator_id = $%[2]d OR %[3]s))`,
				alias, argN, membership)
		}
		return fmt.Sprintf(`(%[1]s.active = TRUE AND %[2]s)`, alias, membership)
	case SystemRoleUser:
		return fmt.Sprintf(`(%[1]s.active = TRUE AND EXISTS (
			SELECT 1 FROM project_members vm
			WHERE vm.project_id = %[1]s.id AND vm.user_id = $%[2]d AND vm.active = TRUE
		))`, alias, argN)
	default:
		return denyAll
	}
}
