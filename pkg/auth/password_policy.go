package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/simple-onboarding/internal/config"
)

// maxPasswordLength caps what is forwarded to the identity provider.
const maxPasswordLength = 128

// PasswordPolicy defines the complexity an administrator password must meet
// before it is sent to the identity provider. Lengths count characters.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// NewPasswordPolicy creates a PasswordPolicy from config.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        cfg.MinLength,
		RequireUppercase: cfg.RequireUppercase,
		RequireLowercase: cfg.RequireLowercase,
		RequireNumber:    cfg.RequireNumber,
		RequireSpecial:   cfg.RequireSpecial,
	}
}

type passwordRule struct {
	enabled     bool
	requirement string
	satisfied   func(string) bool
}

func (p *PasswordPolicy) rules() []passwordRule {
	return []passwordRule{
		{
			enabled:     p.MinLength > 0,
			requirement: fmt.Sprintf("at least %d characters", p.MinLength),
			satisfied:   func(s string) bool { return utf8.RuneCountInString(s) >= p.MinLength },
		},
		{p.RequireUppercase, "one uppercase letter", containsRune(unicode.IsUpper)},
		{p.RequireLowercase, "one lowercase letter", containsRune(unicode.IsLower)},
		{p.RequireNumber, "one number", containsRune(unicode.IsDigit)},
		{p.RequireSpecial, "one special character", containsRune(isSpecial)},
	}
}

// ValidatePassword reports the first requirement the password misses.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) > maxPasswordLength {
		return fmt.Errorf("password must be at most %d characters long", maxPasswordLength)
	}
	for _, r := range p.rules() {
		if r.enabled && !r.satisfied(password) {
			return fmt.Errorf("password must contain %s", r.requirement)
		}
	}
	return nil
}

// Requirements describes the whole policy in one sentence, for error responses.
func (p *PasswordPolicy) Requirements() string {
	var reqs []string
	for _, r := range p.rules() {
		if r.enabled {
			reqs = append(reqs, r.requirement)
		}
	}
	if len(reqs) == 0 {
		return "password is required"
	}
	return "password must contain " + strings.Join(reqs, ", ")
}

func containsRune(pred func(rune) bool) func(string) bool {
	return func(s string) bool {
		return strings.IndexFunc(s, pred) >= 0
	}
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}
