package usecase

import (
	"errors"
	"fmt"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/repository"
)

var (
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = fmt.Errorf("user %w", domain.ErrNotFound)
	// ErrRoleNotFound indicates the referenced role does not exist.
	ErrRoleNotFound = fmt.Errorf("role %w", domain.ErrNotFound)
	// ErrPermissionNotFound indicates the referenced permission does not exist.
	ErrPermissionNotFound = fmt.Errorf("permission %w", domain.ErrNotFound)
	// ErrPermissionDenied indicates the actor lacks required permissions.
	ErrPermissionDenied = fmt.Errorf("insufficient permissions: %w", domain.ErrForbidden)
)

// ConstraintViolationError reports a write rejected by a uniqueness or reference constraint.
type ConstraintViolationError struct {
	Field      string
	Constraint string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s has already been taken", e.Field)
	}
	return fmt.Sprintf("constraint %s violated", e.Constraint)
}

// Is matches domain.ErrConstraintViolation.
func (e *ConstraintViolationError) Is(target error) bool {
	return target == domain.ErrConstraintViolation
}

func (e *ConstraintViolationError) Unwrap() error {
	return e.Err
}

func constraintField(constraint string) string {
	switch constraint {
	case repository.ConstraintUsersUsername:
		return "username"
	case repository.ConstraintUsersEmail:
		return "email"
	case repository.ConstraintRolesName, repository.ConstraintPermissionsName:
		return "name"
	default:
		return ""
	}
}

// writeError translates store write failures into the domain taxonomy.
func writeError(action string, err error, notFound error) error {
	var ce *repository.ConstraintError
	if errors.As(err, &ce) {
		return &ConstraintViolationError{Field: constraintField(ce.Constraint), Constraint: ce.Constraint, Err: err}
	}
	if notFound != nil && errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("%s: %w", action, err)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}
