package domain

import "errors"

// Tenant errors
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrAliasTaken          = errors.New("organization alias is already taken")

	ErrAliasReservationNotFound = errors.New("alias reservation not found")
)

// User errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// Validation errors
var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidAlias    = errors.New("invalid organization alias")
	ErrWeakPassword    = errors.New("password does not meet requirements")
	ErrInvalidFullName = errors.New("invalid full name")
	ErrInvalidOrgName  = errors.New("invalid organization name")
)
