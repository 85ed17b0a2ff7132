package domain

import (
	"time"

	"github.com/google/uuid"
)

// TenantProvisioned is emitted once a tenant has been fully onboarded.
type TenantProvisioned struct {
	TenantID         uuid.UUID `json:"tenantId"`
	OrganizationName string    `json:"organizationName"`
	AdminEmail       string    `json:"adminEmail"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// TenantProvisionedEventName is the routing name of TenantProvisioned.
const TenantProvisionedEventName = "tenant.provisioned"
