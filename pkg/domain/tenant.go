package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPlan is the billing plan of a tenant.
type SubscriptionPlan string

const (
	SubscriptionPlanFree       SubscriptionPlan = "FREE"
	SubscriptionPlanPro        SubscriptionPlan = "PRO"
	SubscriptionPlanEnterprise SubscriptionPlan = "ENTERPRISE"
)

// TenantStatus represents the state of a tenant.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
)

// Tenant represents a customer organization, linked 1:1 with an
// organization in the identity provider.
type Tenant struct {
	ID                    uuid.UUID
	IdentityProviderOrgID string
	Alias                 string
	Name                  string
	// OwnerID is nil only while the tenant is being provisioned.
	OwnerID          *uuid.UUID
	SubscriptionPlan SubscriptionPlan
	Status           TenantStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsActive returns true if the tenant is active.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// HasOwner returns true once ownership has been assigned.
func (t *Tenant) HasOwner() bool {
	return t.OwnerID != nil && *t.OwnerID != uuid.Nil
}
