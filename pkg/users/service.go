package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/storage"
)

// ErrUserExists is returned when a username or email is already taken
var ErrUserExists = errors.New("username or email already registered")

// RegisterRequest is the input to Register
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Service manages user accounts
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*auth.User, error)
	GetUser(ctx context.Context, id int64) (*auth.User, error)
	List(ctx context.Context, actor rbac.Subject, limit, offset int) ([]*auth.User, error)
	UpdateSystemRole(ctx context.Context, actor rbac.Subject, userID int64, role rbac.SystemRole) (*auth.User, error)
	Deactivate(ctx context.Context, actor rbac.Subject, userID int64) error
}

// SQLService implements Service over the users table
type SQLService struct {
	db          *sql.DB
	gate        *rbac.Gate
	auditLogger audit.Logger
}

// NewSQLService creates a new SQLService
func NewSQLService(db *sql.DB, gate *rbac.Gate, auditLogger audit.Logger) *SQLService {
	if auditLogger == nil {
		auditLogger = audit.NoOpLogger{}
	}
	return &SQLService{db: db, gate: gate, auditLogger: auditLogger}
}

// Register creates an active account with the USER system role
func (s *SQLService) Register(ctx context.Context, req RegisterRequest) (*auth.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || len(username) > 255 {
		return nil, fmt.Errorf("%w: username must be 1-255 characters", rbac.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", rbac.ErrInvalidInput)
	}

	now := time.Now().UTC()
	user := &auth.User{
		Username:   username,
		Email:      email,
		SystemRole: rbac.SystemRoleUser,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO users (username, email, system_role, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING id
	`, user.Username, user.Email, string(user.SystemRole), now, now).Scan(&user.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log(ctx, audit.NewEvent(ctx, audit.EventTypeAdminUserCreate, audit.EventStatusSuccess).
		WithActor(user.ID).
		WithResource(audit.ResourceTypeUser, strconv.FormatInt(user.ID, 10)))
	return user, nil
}

// GetUser retrieves a user by ID, active or not
func (s *SQLService) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	row := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, username, email, system_role, active, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)

	user, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, rbac.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// List returns all accounts ordered by username. System ADMIN only.
func (s *SQLService) List(ctx context.Context, actor rbac.Subject, limit, offset int) ([]*auth.User, error) {
	if err := s.gate.RequireSystemRole(ctx, actor, rbac.SystemRoleAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := storage.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT id, username, email, system_role, active, created_at, updated_at
		FROM users
		ORDER BY username ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateSystemRole changes a user's system role. System ADMIN only, and
// never on oneself.
func (s *SQLService) UpdateSystemRole(ctx context.Context, actor rbac.Subject, userID int64, role rbac.SystemRole) (*auth.User, error) {
	if err := s.gate.RequireSystemRole(ctx, actor, rbac.SystemRoleAdmin); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", rbac.ErrInvalidRole, string(role))
	}
	if actor.UserID == userID {
		return nil, fmt.Errorf("%w: cannot change your own system role", rbac.ErrInvalidOperation)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := user.SystemRole

	user.SystemRole = role
	user.UpdatedAt = time.Now().UTC()
	if _, err := storage.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET system_role = $1, updated_at = $2 WHERE id = $3`,
		string(role), user.UpdatedAt, userID,
	); err != nil {
		return nil, fmt.Errorf("failed to update system role: %w", err)
	}

	s.log(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzRoleChange, audit.EventStatusSuccess).
		WithActor(actor.UserID).
		WithResource(audit.ResourceTypeUser, strconv.FormatInt(userID, 10)).
		With("previous_role", string(previous)).
		With("role", string(role)))
	return user, nil
}

// Deactivate disables an account. Its memberships stay in place but no
// longer grant anything. System ADMIN only, and never on oneself.
func (s *SQLService) Deactivate(ctx context.Context, actor rbac.Subject, userID int64) error {
	if err := s.gate.RequireSystemRole(ctx, actor, rbac.SystemRoleAdmin); err != nil {
		return err
	}
	if actor.UserID == userID {
		return fmt.Errorf("%w: cannot deactivate yourself", rbac.ErrInvalidOperation)
	}

	result, err := storage.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return rbac.ErrUserNotFound
	}

	s.log(ctx, audit.NewEvent(ctx, audit.EventTypeAdminUserDeactivate, audit.EventStatusSuccess).
		WithActor(actor.UserID).
		WithResource(audit.ResourceTypeUser, strconv.FormatInt(userID, 10)))
	return nil
}

func (s *SQLService) log(ctx context.Context, event *audit.AuditEvent) {
	_ = s.auditLogger.Log(ctx, event)
}

func scanUser(scan func(dest ...interface{}) error) (*auth.User, error) {
	var u auth.User
	var role string
	if err := scan(&u.ID, &u.Username, &u.Email, &role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.SystemRole = rbac.SystemRole(role)
	return &u, nil
}
