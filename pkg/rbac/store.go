package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/taskboard/pkg/storage"
)

// ProjectLookup loads the project fields needed for role resolution
type ProjectLookup interface {
	// GetProjectRef returns ErrProjectNotFound for unknown ids. Archived
	// projects are returned with Active=false.
	GetProjectRef(ctx context.Context, projectID int64) (*ProjectRef, error)
}

// UserLookup loads the identity of a user
type UserLookup interface {
	// GetSubject returns ErrUserNotFound for unknown ids
	GetSubject(ctx context.Context, userID int64) (*Subject, error)
}

// MembershipStore persists project membership rows
type MembershipStore interface {
	// GetActiveMembership returns ErrMemberNotFound when the user holds no
	// active row on the project
	GetActiveMembership(ctx context.Context, projectID, userID int64) (*Membership, error)
	GetOwnerMembership(ctx context.Context, projectID int64) (*Membership, error)
	ListActiveMemberships(ctx context.Context, projectID int64) ([]Membership, error)

	// InsertMembership sets m.ID. A second active row for the same
	// (project, user) fails with ErrMemberExists.
	InsertMembership(ctx context.Context, m *Membership) error
	UpdateMembershipRole(ctx context.Context, membershipID int64, role ProjectRole) error
	DeactivateMembership(ctx context.Context, membershipID int64, leftAt time.Time) error
	SetProjectOwner(ctx context.Context, projectID, ownerID int64) error
}

// Store is everything the engine reads and writes
type Store interface {
	ProjectLookup
	UserLookup
	MembershipStore
}

// SQLStore implements Store over database/sql. Every statement runs in the
// transaction carried by ctx when there is one.
type SQLStore struct {
	db *sql.DB
}

// NewStore creates a new SQL-backed store
func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// GetProjectRef implements ProjectLookup
func (s *SQLStore) GetProjectRef(ctx context.Context, projectID int64) (*ProjectRef, error) {
	var ref ProjectRef
	err := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, owner_id, creator_id, active
		FROM projects
		WHERE id = $1
	`, projectID).Scan(&ref.ID, &ref.OwnerID, &ref.CreatorID, &ref.Active)
	if err == sql.ErrNoRows {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %d: %w", projectID, err)
	}
	return &ref, nil
}

// GetSubject implements UserLookup
func (s *SQLStore) GetSubject(ctx context.Context, userID int64) (*Subject, error) {
	var subject Subject
	var role string
	err := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, system_role, active
		FROM users
		WHERE id = $1
	`, userID).Scan(&subject.UserID, &role, &subject.Active)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	subject.SystemRole, err = ParseSystemRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	return &subject, nil
}

const membershipColumns = `id, project_id, user_id, role, active, joined_at, left_at, added_by`

// GetActiveMembership implements MembershipStore
func (s *SQLStore) GetActiveMembership(ctx context.Context, projectID, userID int64) (*Membership, error) {
	row := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+membershipColumns+`
		FROM project_members
		WHERE project_id = $1 AND user_id = $2 AND active = TRUE
	`, projectID, userID)

	m, err := scanMembership(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return m, nil
}

// GetOwnerMembership implements MembershipStore
func (s *SQLStore) GetOwnerMembership(ctx context.Context, projectID int64) (*Membership, error) {
	row := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+membershipColumns+`
		FROM project_members
		WHERE project_id = $1 AND role = 'owner' AND active = TRUE
	`, projectID)

	m, err := scanMembership(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project owner: %w", err)
	}
	return m, nil
}

// ListActiveMemberships implements MembershipStore, oldest member first
func (s *SQLStore) ListActiveMemberships(ctx context.Context, projectID int64) ([]Membership, error) {
	rows, err := storage.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT m.id, m.project_id, m.user_id, m.role, m.active, m.joined_at, m.left_at, m.added_by,
		       u.username, u.email
		FROM project_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1 AND m.active = TRUE
		ORDER BY m.joined_at ASC, m.id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var username, email string
		m, err := scanMembership(func(dest ...interface{}) error {
			return rows.Scan(append(dest, &username, &email)...)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Username = username
		m.Email = email
		members = append(members, *m)
	}
	return members, rows.Err()
}

// InsertMembership implements MembershipStore
func (s *SQLStore) InsertMembership(ctx context.Context, m *Membership) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	m.Active = true

	var addedBy interface{}
	if m.AddedBy != nil {
		addedBy = *m.AddedBy
	}

	err := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, active, joined_at, added_by)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING id
	`, m.ProjectID, m.UserID, string(m.Role), m.JoinedAt, addedBy).Scan(&m.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return ErrMemberExists
		}
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// UpdateMembershipRole implements MembershipStore
func (s *SQLStore) UpdateMembershipRole(ctx context.Context, membershipID int64, role ProjectRole) error {
	result, err := storage.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE project_members SET role = $1 WHERE id = $2 AND active = TRUE
	`, string(role), membershipID)
	if err != nil {
		return fmt.Errorf("failed to update membership role: %w", err)
	}
	return expectOneRow(result, ErrMemberNotFound)
}

// DeactivateMembership implements MembershipStore
func (s *SQLStore) DeactivateMembership(ctx context.Context, membershipID int64, leftAt time.Time) error {
	result, err := storage.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE project_members SET active = FALSE, left_at = $1 WHERE id = $2 AND active = TRUE
	`, leftAt.UTC(), membershipID)
	if err != nil {
		return fmt.Errorf("failed to deactivate membership: %w", err)
	}
	return expectOneRow(result, ErrMemberNotFound)
}

// SetProjectOwner implements MembershipStore
func (s *SQLStore) SetProjectOwner(ctx context.Context, projectID, ownerID int64) error {
	result, err := storage.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE projects SET owner_id = $1, updated_at = $2 WHERE id = $3
	`, ownerID, time.Now().UTC(), projectID)
	if err != nil {
		return fmt.Errorf("failed to update project owner: %w", err)
	}
	return expectOneRow(result, ErrProjectNotFound)
}

func scanMembership(scan func(dest ...interface{}) error) (*Membership, error) {
	var m Membership
	var role string
	var leftAt sql.NullTime
	var addedBy sql.NullInt64

	if err := scan(&m.ID, &m.ProjectID, &m.UserID, &role, &m.Active, &m.JoinedAt, &leftAt, &addedBy); err != nil {
		return nil, err
	}

	m.Role = ProjectRole(role)
	if leftAt.Valid {
		t := leftAt.Time
		m.LeftAt = &t
	}
	if addedBy.Valid {
		id := addedBy.Int64
		m.AddedBy = &id
	}
	return &m, nil
}

func expectOneRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// IsNotFound reports whether err is one of the engine's not-found kinds
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
