package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlatformRole is a user's platform-wide role, independent of any tenant.
type PlatformRole string

const (
	PlatformRoleSuperAdmin PlatformRole = "SUPER_ADMIN"
	PlatformRoleUser       PlatformRole = "USER"
)

// UserStatus represents the state of a platform user.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User represents the platform's local record of an identity.
type User struct {
	ID                     uuid.UUID
	Email                  string
	FirstName              string
	LastName               string
	IdentityProviderUserID string
	PlatformRole           PlatformRole
	Status                 UserStatus
	Tenants                []TenantMembership
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Membership returns the user's membership in the given tenant, if any.
func (u *User) Membership(tenantID uuid.UUID) (*TenantMembership, bool) {
	for i := range u.Tenants {
		if u.Tenants[i].TenantID == tenantID {
			return &u.Tenants[i], true
		}
	}
	return nil, false
}

// UserProfile holds the fields written when a user is first created.
type UserProfile struct {
	FirstName    string
	LastName     string
	PlatformRole PlatformRole
	Status       UserStatus
}

// SplitFullName splits a full name at the first space into first and last name.
func SplitFullName(fullName string) (first, last string) {
	fullName = strings.TrimSpace(fullName)
	if i := strings.IndexByte(fullName, ' '); i > -1 {
		return fullName[:i], strings.TrimSpace(fullName[i+1:])
	}
	return fullName, ""
}
