// Package idp is the boundary to the external identity provider that owns
// organizations, users and organization memberships.
package idp

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrOrganizationExists is returned when the IdP already has an organization
	// with the requested name or alias.
	ErrOrganizationExists = errors.New("organization already exists in identity provider")
	// ErrUserExists is returned when the IdP already has a user with the email.
	ErrUserExists = errors.New("user already exists in identity provider")
	// ErrUserNotFound is returned by FindUserByEmail when no user matches.
	ErrUserNotFound = errors.New("user not found in identity provider")
)

// Organization is an IdP organization.
type Organization struct {
	ID    string
	Name  string
	Alias string
}

// User is an IdP user.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Username  string
}

// Gateway is the set of IdP operations tenant onboarding depends on.
//
// DeleteOrganization and DeleteUser are idempotent: deleting something that no
// longer exists succeeds.
type Gateway interface {
	CreateOrganization(ctx context.Context, name, alias string) (*Organization, error)
	DeleteOrganization(ctx context.Context, orgID string) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, email, password, fullName string) (*User, error)
	DeleteUser(ctx context.Context, userID string) error
	AddUserToOrganization(ctx context.Context, orgID, userID string) error
}

// APIError is an unexpected response from the IdP admin API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity provider %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}
