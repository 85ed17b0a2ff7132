package onboarding

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/simple-onboarding/pkg/domain"
)

// AliasReservationStore claims aliases for the duration of a registration.
// Reserve must fail with domain.ErrAliasTaken when the alias is held.
type AliasReservationStore interface {
	Reserve(ctx context.Context, alias string) error
	Confirm(ctx context.Context, alias string) error
	Delete(ctx context.Context, alias string) error
	Get(ctx context.Context, alias string) (*domain.AliasReservation, error)
}

// TenantStore persists tenants.
type TenantStore interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	GetByAlias(ctx context.Context, alias string) (*domain.Tenant, error)
	UpdateOwner(ctx context.Context, tenantID, userID uuid.UUID) error
}

// UserDirectory persists platform users and their memberships.
type UserDirectory interface {
	UpsertWithTenantMembership(
		ctx context.Context,
		identityProviderUserID, email string,
		profile domain.UserProfile,
		memberships []domain.TenantMembership,
	) (*domain.User, error)
}

// EventEmitter publishes domain events without blocking the caller.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.TenantProvisioned)
}

// Metrics records saga outcomes.
type Metrics interface {
	RegistrationFinished(outcome string)
	StepFailed(step string)
	CompensationFailed(action string)
}

type nopMetrics struct{}

func (nopMetrics) RegistrationFinished(string) {}
func (nopMetrics) StepFailed(string)           {}
func (nopMetrics) CompensationFailed(string)   {}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, domain.TenantProvisioned) {}
