package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant roles granted through a membership.
const (
	TenantRoleOwner  = "OWNER"
	TenantRoleAdmin  = "ADMIN"
	TenantRoleMember = "MEMBER"
	TenantRoleViewer = "VIEWER"
	TenantRoleGuest  = "GUEST"
)

// TenantMembership represents a user's membership in a tenant.
type TenantMembership struct {
	TenantID uuid.UUID
	Roles    []string
	JoinedAt time.Time
}

// HasRole returns true if the membership grants the given role.
func (m *TenantMembership) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MergeRoles returns the union of two role sets, keeping the order of first
// appearance.
func MergeRoles(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, set := range [][]string{a, b} {
		for _, r := range set {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged
}
