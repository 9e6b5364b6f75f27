package security

import (
	"errors"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

func strictPolicy() *PasswordPolicy {
	return NewPasswordPolicy(PasswordPolicyOptions{MinLength: 10, MinCharacterClasses: 3, MinStrengthScore: 3})
}

func TestPasswordPolicyAcceptsStrongPassword(t *testing.T) {
	password := "C0mplex!Passphrase#2025"
	if strength := zxcvbn.PasswordStrength(password, nil); strength.Score < 3 {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if err := strictPolicy().Validate(password, domain.PasswordContext{Email: "jane@example.com"}); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}
}

func TestPasswordPolicyViolations(t *testing.T) {
	policy := strictPolicy()

	cases := map[string]string{
		"Short1!":           "min_length",
		"lowercasepassword": "character_classes",
		"Password123":       "weak_password",
	}
	for password, code := range cases {
		err := policy.Validate(password, domain.PasswordContext{})
		var vErr *PasswordValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%q: expected PasswordValidationError, got %v", password, err)
		}
		if vErr.Code != code {
			t.Fatalf("%q: expected %s, got %s", password, code, vErr.Code)
		}
	}
}

func TestMaxLengthRule(t *testing.T) {
	validator := NewPasswordValidator(MaxLengthRule(4))
	if err := validator.Validate("abcd"); err != nil {
		t.Fatalf("expected 4 runes to pass, got %v", err)
	}
	if err := validator.Validate("abcde"); err == nil {
		t.Fatal("expected 5 runes to fail")
	}
}

func TestZeroOptionsOnlyBoundLength(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyOptions{})
	if err := policy.Validate("a", domain.PasswordContext{}); err != nil {
		t.Fatalf("expected permissive policy, got %v", err)
	}
}
