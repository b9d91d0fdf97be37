package rbac

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRole      = errors.New("invalid role")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidInput     = errors.New("invalid input")
	ErrMemberNotFound   = errors.New("member not found")
	ErrMemberExists     = errors.New("user is already a member of this project")
	ErrUserNotFound     = errors.New("user not found")
	ErrProjectNotFound  = errors.New("project not found")
	ErrTaskNotFound     = errors.New("task not found")
)

// ForbiddenError is returned when a subject has standing but ranks too low.
// It matches ErrForbidden under errors.Is.
type ForbiddenError struct {
	// Required names the minimum role, or the accepted roles, for the check
	Required string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: requires %s", e.Required)
}

// Is lets errors.Is(err, ErrForbidden) succeed
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

func forbidden(required fmt.Stringer) error {
	return &ForbiddenError{Required: required.String()}
}

func invalidOperation(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, reason)
}
