package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a lookup by id resolved to nothing.
	ErrNotFound = errors.New("not found")
	// ErrConstraintViolation indicates the store rejected a write due to a uniqueness or foreign-key constraint.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrGenerationExhausted indicates the unique value generator ran out of attempts.
	ErrGenerationExhausted = errors.New("unique value generation exhausted")
	// ErrInvalidInput indicates the caller supplied malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden indicates the subject lacks the required permission.
	ErrForbidden = errors.New("forbidden")
)

// GenerationExhaustedError reports the parameters of a failed unique value generation.
type GenerationExhaustedError struct {
	Prefix   string
	Digits   int
	Attempts int
}

func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("unique value generation exhausted after %d attempts (prefix=%q, digits=%d)", e.Attempts, e.Prefix, e.Digits)
}

// Is matches ErrGenerationExhausted.
func (e *GenerationExhaustedError) Is(target error) bool {
	return target == ErrGenerationExhausted
}
