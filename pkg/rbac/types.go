package rbac

import "time"

// Subject is the identity an authorization decision is made for
type Subject struct {
	UserID     int64
	SystemRole SystemRole
	Active     bool
}

// ProjectRef carries the project fields the resolver needs
type ProjectRef struct {
	ID        int64
	OwnerID   int64
	CreatorID int64
	Active    bool
}

// Membership is a user's row in a project's member list
type Membership struct {
	ID        int64       `json:"id"`
	ProjectID int64       `json:"project_id"`
	UserID    int64       `json:"user_id"`
	Role      ProjectRole `json:"role"`
	Active    bool        `json:"active"`
	JoinedAt  time.Time   `json:"joined_at"`
	LeftAt    *time.Time  `json:"left_at,omitempty"`
	AddedBy   *int64      `json:"added_by,omitempty"`

	// Populated by ListActiveMemberships
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}
