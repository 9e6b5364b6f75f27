package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

var inputValidator = validator.New(validator.WithRequiredStructEnabled())

// validateInput checks struct tags and flattens failures into one ErrInvalidInput.
func validateInput(input any) error {
	err := inputValidator.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate input: %w", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		messages = append(messages, describeFieldError(fieldErr))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(messages, "; "))
}

func validateEmail(email string) error {
	if err := inputValidator.Var(email, "required,email,max=255"); err != nil {
		return invalidInput("email must be a valid email address")
	}
	return nil
}

// validateUsername keeps usernames disjoint from emails, which logins tell apart by "@".
func validateUsername(username string) error {
	if err := inputValidator.Var(username, "max=255,excludes=@"); err != nil {
		return invalidInput("username must be at most 255 characters and must not contain @")
	}
	return nil
}

func describeFieldError(fieldErr validator.FieldError) string {
	field := strings.ToLower(fieldErr.Field())
	switch fieldErr.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fieldErr.Param())
	case "excludes":
		return fmt.Sprintf("%s must not contain %s", field, fieldErr.Param())
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fieldErr.Tag())
	}
}
