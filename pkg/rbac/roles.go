package rbac

import (
	"fmt"
	"strings"
)

// SystemRole is a user's platform-wide role
type SystemRole string

const (
	SystemRoleUser    SystemRole = "user"
	SystemRoleManager SystemRole = "manager"
	SystemRoleAdmin   SystemRole = "admin"
)

// ProjectRole is a user's standing within a single project
type ProjectRole string

const (
	// RoleNone is the effective role of a subject with no standing on a project
	RoleNone   ProjectRole = ""
	RoleViewer ProjectRole = "viewer"
	RoleMember ProjectRole = "member"
	RoleAdmin  ProjectRole = "admin"
	RoleOwner  ProjectRole = "owner"
)

// SystemRoles returns every system role in ascending rank order
func SystemRoles() []SystemRole {
	return []SystemRole{SystemRoleUser, SystemRoleManager, SystemRoleAdmin}
}

// ProjectRoles returns every assignable project role in ascending rank order
func ProjectRoles() []ProjectRole {
	return []ProjectRole{RoleViewer, RoleMember, RoleAdmin, RoleOwner}
}

// Rank returns the role's position in the system hierarchy, 0 if unknown
func (r SystemRole) Rank() int {
	switch r {
	case SystemRoleUser:
		return 1
	case SystemRoleManager:
		return 2
	case SystemRoleAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is a known system role
func (r SystemRole) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r ranks at or above min
func (r SystemRole) AtLeast(min SystemRole) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// Compare returns -1, 0 or +1 as r ranks below, equal to or above other
func (r SystemRole) Compare(other SystemRole) int {
	return compareRanks(r.Rank(), other.Rank())
}

func (r SystemRole) String() string {
	return string(r)
}

// Rank returns the role's position in the project hierarchy; RoleNone and
// unknown labels rank 0
func (r ProjectRole) Rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleMember:
		return 2
	case RoleAdmin:
		return 3
	case RoleOwner:
		return 4
	default:
		return 0
	}
}

// Valid reports whether r is an assignable project role. RoleNone is not.
func (r ProjectRole) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r ranks at or above min
func (r ProjectRole) AtLeast(min ProjectRole) bool {
	return r.Rank() >= min.Rank()
}

// Compare returns -1, 0 or +1 as r ranks below, equal to or above other
func (r ProjectRole) Compare(other ProjectRole) int {
	return compareRanks(r.Rank(), other.Rank())
}

func (r ProjectRole) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}

// ParseSystemRole parses a system role label, ignoring case
func ParseSystemRole(label string) (SystemRole, error) {
	role := SystemRole(strings.ToLower(strings.TrimSpace(label)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown system role %q", ErrInvalidRole, label)
	}
	return role, nil
}

// ParseProjectRole parses a project role label, ignoring case
func ParseProjectRole(label string) (ProjectRole, error) {
	role := ProjectRole(strings.ToLower(strings.TrimSpace(label)))
	if !role.Valid() {
		return RoleNone, fmt.Errorf("%w: unknown project role %q", ErrInvalidRole, label)
	}
	return role, nil
}

// SystemRank returns the rank of a system role label
func SystemRank(label string) (int, error) {
	role, err := ParseSystemRole(label)
	if err != nil {
		return 0, err
	}
	return role.Rank(), nil
}

// ProjectRank returns the rank of a project role label
func ProjectRank(label string) (int, error) {
	role, err := ParseProjectRole(label)
	if err != nil {
		return 0, err
	}
	return role.Rank(), nil
}

func compareRanks(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
