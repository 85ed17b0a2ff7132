package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/tendant/simple-onboarding/pkg/domain"
)

func TestValidateAlias(t *testing.T) {
	tests := []struct {
		name    string
		alias   string
		wantErr bool
	}{
		// Valid aliases
		{
			name:    "valid alphanumeric",
			alias:   "acme123",
			wantErr: false,
		},
		{
			name:    "valid with hyphen",
			alias:   "acme-corp",
			wantErr: false,
		},
		{
			name:    "valid minimum length (3 chars)",
			alias:   "abc",
			wantErr: false,
		},
		{
			name:    "valid maximum length (63 chars)",
			alias:   strings.Repeat("a", 63),
			wantErr: false,
		},
		{
			name:    "valid starts with digit",
			alias:   "1acme",
			wantErr: false,
		},
		// Invalid aliases
		{
			name:    "empty",
			alias:   "",
			wantErr: true,
		},
		{
			name:    "too short (2 chars)",
			alias:   "ab",
			wantErr: true,
		},
		{
			name:    "too long (64 chars)",
			alias:   strings.Repeat("a", 64),
			wantErr: true,
		},
		{
			name:    "uppercase",
			alias:   "Acme",
			wantErr: true,
		},
		{
			name:    "starts with hyphen",
			alias:   "-acme",
			wantErr: true,
		},
		{
			name:    "ends with hyphen",
			alias:   "acme-",
			wantErr: true,
		},
		{
			name:    "underscore",
			alias:   "acme_corp",
			wantErr: true,
		},
		{
			name:    "dot",
			alias:   "acme.corp",
			wantErr: true,
		},
		{
			name:    "unicode characters",
			alias:   "acmé",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAlias(tt.alias)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAlias(%q) error = %v, wantErr %v", tt.alias, err, tt.wantErr)
			}
			if err != nil && err != domain.ErrInvalidAlias {
				t.Errorf("ValidateAlias(%q) error = %v, want %v", tt.alias, err, domain.ErrInvalidAlias)
			}
		})
	}
}

func validRegistration() Registration {
	return Registration{
		Email:            "Admin@Acme.test",
		Password:         "Password123!",
		FullName:         "  Jane   Doe ",
		OrganizationName: "Acme Corp",
		Alias:            "acme",
	}
}

func TestRegistrationValidator_Validate(t *testing.T) {
	policy := &PasswordPolicy{MinLength: 8, RequireUppercase: true, RequireLowercase: true, RequireNumber: true, RequireSpecial: true}
	v := NewRegistrationValidator(policy, true, true)

	tests := []struct {
		name      string
		mutate    func(r *Registration)
		wantField string
		wantErr   error
	}{
		{
			name:   "valid",
			mutate: func(r *Registration) {},
		},
		{
			name:      "bad email",
			mutate:    func(r *Registration) { r.Email = "not-an-email" },
			wantField: "email",
			wantErr:   domain.ErrInvalidEmail,
		},
		{
			name:      "disposable email",
			mutate:    func(r *Registration) { r.Email = "x@mailinator.com" },
			wantField: "email",
			wantErr:   domain.ErrInvalidEmail,
		},
		{
			name:      "weak password",
			mutate:    func(r *Registration) { r.Password = "password" },
			wantField: "password",
			wantErr:   domain.ErrWeakPassword,
		},
		{
			name:      "empty full name",
			mutate:    func(r *Registration) { r.FullName = "   " },
			wantField: "fullName",
			wantErr:   domain.ErrInvalidFullName,
		},
		{
			name:      "full name too long",
			mutate:    func(r *Registration) { r.FullName = strings.Repeat("x", 101) },
			wantField: "fullName",
			wantErr:   domain.ErrInvalidFullName,
		},
		{
			name:      "organization name too long",
			mutate:    func(r *Registration) { r.OrganizationName = strings.Repeat("x", 151) },
			wantField: "organizationName",
			wantErr:   domain.ErrInvalidOrgName,
		},
		{
			name:      "bad alias",
			mutate:    func(r *Registration) { r.Alias = "Acme!" },
			wantField: "organizationAlias",
			wantErr:   domain.ErrInvalidAlias,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegistration()
			tt.mutate(&in)

			got, err := v.Validate(in)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				if got.Email != "admin@acme.test" {
					t.Errorf("Email = %q, want normalized %q", got.Email, "admin@acme.test")
				}
				if got.FullName != "Jane Doe" {
					t.Errorf("FullName = %q, want %q", got.FullName, "Jane Doe")
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
