package auth

import (
	"github.com/tendant/simple-onboarding/pkg/domain"
)

const (
	maxFullNameLength         = 100
	maxOrganizationNameLength = 150
)

// ValidationError reports an invalid registration field. It unwraps to the
// domain validation error for the field.
type ValidationError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Registration is a tenant registration as submitted by a client.
type Registration struct {
	Email            string
	Password         string
	FullName         string
	OrganizationName string
	Alias            string
}

// RegistrationValidator checks and normalizes registrations before they reach
// the onboarding service.
type RegistrationValidator struct {
	policy                *PasswordPolicy
	strictEmailValidation bool
	blockDisposableEmail  bool
}

// NewRegistrationValidator creates a validator. A nil policy accepts any
// non-empty password.
func NewRegistrationValidator(policy *PasswordPolicy, strictEmailValidation, blockDisposableEmail bool) *RegistrationValidator {
	return &RegistrationValidator{
		policy:                policy,
		strictEmailValidation: strictEmailValidation,
		blockDisposableEmail:  blockDisposableEmail,
	}
}

// Validate returns the normalized registration, or a *ValidationError for the
// first invalid field.
func (v *RegistrationValidator) Validate(r Registration) (Registration, error) {
	// Validate and normalize email
	if err := ValidateEmail(r.Email, v.strictEmailValidation, v.blockDisposableEmail); err != nil {
		return r, &ValidationError{Field: "email", Detail: err.Error(), Err: domain.ErrInvalidEmail}
	}
	r.Email = NormalizeEmail(r.Email)

	// Validate password against policy
	if r.Password == "" {
		return r, &ValidationError{Field: "password", Detail: "password is required", Err: domain.ErrWeakPassword}
	}
	if v.policy != nil {
		if err := v.policy.ValidatePassword(r.Password); err != nil {
			return r, &ValidationError{Field: "password", Detail: v.policy.Requirements(), Err: domain.ErrWeakPassword}
		}
	}

	r.FullName = SanitizeName(r.FullName)
	if err := ValidateStringLength("fullName", r.FullName, 1, maxFullNameLength); err != nil {
		return r, &ValidationError{Field: "fullName", Detail: err.Error(), Err: domain.ErrInvalidFullName}
	}

	r.OrganizationName = SanitizeName(r.OrganizationName)
	if err := ValidateStringLength("organizationName", r.OrganizationName, 1, maxOrganizationNameLength); err != nil {
		return r, &ValidationError{Field: "organizationName", Detail: err.Error(), Err: domain.ErrInvalidOrgName}
	}

	if err := ValidateAlias(r.Alias); err != nil {
		return r, &ValidationError{
			Field:  "organizationAlias",
			Detail: "must be 3-63 lowercase letters, numbers or hyphens, starting and ending with a letter or number",
			Err:    domain.ErrInvalidAlias,
		}
	}

	return r, nil
}
