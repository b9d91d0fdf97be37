package auth

import (
	"errors"
	"time"

	"github.com/platinummonkey/taskboard/pkg/rbac"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenRevoked  = errors.New("token revoked")
)

// User represents a taskboard account
type User struct {
	ID         int64           `json:"id"`
	Username   string          `json:"username"`
	Email      string          `json:"email"`
	SystemRole rbac.SystemRole `json:"system_role"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Subject returns the identity used for authorization decisions
func (u *User) Subject() rbac.Subject {
	if u == nil {
		return rbac.Subject{}
	}
	return rbac.Subject{UserID: u.ID, SystemRole: u.SystemRole, Active: u.Active}
}

// Scope represents API token scopes
type Scope string

const (
	ScopeProjectsRead  Scope = "projects:read"
	ScopeProjectsWrite Scope = "projects:write"
	ScopeTasksRead     Scope = "tasks:read"
	ScopeTasksWrite    Scope = "tasks:write"
	ScopeTokensManage  Scope = "tokens:manage"
	ScopeUsersAdmin    Scope = "users:admin"
	ScopeAll           Scope = "*"
)

// KnownScopes returns every scope a token may carry
func KnownScopes() []Scope {
	return []Scope{
		ScopeProjectsRead, ScopeProjectsWrite,
		ScopeTasksRead, ScopeTasksWrite,
		ScopeTokensManage, ScopeUsersAdmin,
		ScopeAll,
	}
}

// ValidScope reports whether s is a known scope
func ValidScope(s Scope) bool {
	for _, known := range KnownScopes() {
		if s == known {
			return true
		}
	}
	return false
}

// APIToken represents an API token
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TokenHash    string     `json:"-"` // Never expose hash
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Scopes       []Scope    `json:"scopes"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Expired reports whether the token has passed its expiry at now
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// Revoked reports whether the token has been revoked
func (t *APIToken) Revoked() bool {
	return t.RevokedAt != nil
}

// AuthContext holds authenticated user information
type AuthContext struct {
	User   *User
	Token  *APIToken
	Scopes []Scope
}

// HasScope checks if the context has a specific scope
func (ac *AuthContext) HasScope(scope Scope) bool {
	for _, s := range ac.Scopes {
		if s == ScopeAll || s == scope {
			return true
		}
	}
	return false
}

// Subject returns the authorization subject for the authenticated user
func (ac *AuthContext) Subject() rbac.Subject {
	if ac == nil {
		return rbac.Subject{}
	}
	return ac.User.Subject()
}
