package auth

import (
	"regexp"

	"github.com/tendant/simple-onboarding/pkg/domain"
)

const (
	minAliasLength = 3
	maxAliasLength = 63 // DNS label limit; the alias becomes a subdomain
)

var aliasRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

// ValidateAlias checks that alias is a lowercase DNS label of 3 to 63
// characters that starts and ends with a letter or digit.
func ValidateAlias(alias string) error {
	if len(alias) < minAliasLength || len(alias) > maxAliasLength {
		return domain.ErrInvalidAlias
	}
	if !aliasRegex.MatchString(alias) {
		return domain.ErrInvalidAlias
	}
	return nil
}
