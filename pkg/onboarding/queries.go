package onboarding

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-onboarding/pkg/domain"
)

// FindTenantByID returns the tenant with the given id.
func (s *Service) FindTenantByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return s.tenants.GetByID(ctx, id)
}

// FindTenantByAlias returns the tenant with the given alias.
func (s *Service) FindTenantByAlias(ctx context.Context, alias string) (*domain.Tenant, error) {
	return s.tenants.GetByAlias(ctx, alias)
}

// CheckAliasAvailability reports whether alias is currently free. The answer is
// advisory; only Register's reservation decides who gets the alias.
func (s *Service) CheckAliasAvailability(ctx context.Context, alias string) (bool, error) {
	res, err := s.aliases.Get(ctx, alias)
	switch {
	case err == nil:
		if !res.IsExpired(s.now()) {
			return false, nil
		}
	case !errors.Is(err, domain.ErrAliasReservationNotFound):
		return false, err
	}

	_, err = s.tenants.GetByAlias(ctx, alias)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, domain.ErrTenantNotFound):
		return true, nil
	default:
		return false, err
	}
}
