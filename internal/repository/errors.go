package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a write was rejected by a uniqueness or referential constraint.
	ErrConflict = errors.New("repository: conflict")
)

// Constraint names shared by every backend so callers can react to a specific violation.
const (
	ConstraintUsersUsername   = "users_username_key"
	ConstraintUsersEmail      = "users_email_key"
	ConstraintRolesName       = "roles_name_guard_name_key"
	ConstraintPermissionsName = "permissions_name_guard_name_key"
	ConstraintForeignKey      = "foreign_key"
)

// ConstraintError describes the constraint a write violated.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("constraint %s violated: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("constraint %s violated", e.Constraint)
}

// Unwrap exposes ErrConflict and the driver error.
func (e *ConstraintError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConflict}
	}
	return []error{ErrConflict, e.Err}
}

// IsConstraint reports whether err is a ConstraintError for the named constraint.
func IsConstraint(err error, constraint string) bool {
	var ce *ConstraintError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Constraint == constraint
}
