package security

import (
	"strings"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
)

// PasswordPolicyOptions tunes the password policy. Zero values disable the matching rule,
// except MaxLength which falls back to 255.
type PasswordPolicyOptions struct {
	MinLength           int
	MaxLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

// DefaultPasswordPolicyOptions mirrors the account module's registration rules.
func DefaultPasswordPolicyOptions() PasswordPolicyOptions {
	return PasswordPolicyOptions{
		MinLength:           8,
		MaxLength:           255,
		MinCharacterClasses: 2,
		MinStrengthScore:    2,
	}
}

// PasswordPolicy validates passwords against the configured rules, feeding the account's own
// name, username and email to the strength estimator.
type PasswordPolicy struct {
	opts PasswordPolicyOptions
}

// NewPasswordPolicy constructs a PasswordPolicy.
func NewPasswordPolicy(opts PasswordPolicyOptions) *PasswordPolicy {
	if opts.MaxLength <= 0 {
		opts.MaxLength = 255
	}
	return &PasswordPolicy{opts: opts}
}

// Validate implements port.PasswordPolicyValidator.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	inputs := make([]string, 0, 4)
	for _, value := range []string{ctx.Name, ctx.Username, ctx.Email} {
		if value = strings.TrimSpace(value); value != "" {
			inputs = append(inputs, value)
		}
	}
	if local, _, ok := strings.Cut(ctx.Email, "@"); ok && local != "" {
		inputs = append(inputs, local)
	}

	return NewPasswordValidator(
		MinLengthRule(p.opts.MinLength),
		MaxLengthRule(p.opts.MaxLength),
		RequireCharacterClassesRule(p.opts.MinCharacterClasses),
		RequirePasswordStrengthRule(p.opts.MinStrengthScore, inputs...),
	).Validate(password)
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
