// Package onboarding registers new tenants across the identity provider and the
// local stores, undoing the identity provider side when a registration fails.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/tendant/simple-onboarding/pkg/domain"
	"github.com/tendant/simple-onboarding/pkg/idp"
)

// Saga steps, in execution order.
const (
	StepReserveAlias       = "reserve_alias"
	StepCreateOrganization = "create_organization"
	StepProvisionUser      = "provision_idp_user"
	StepAddMember          = "add_organization_member"
	StepCreateTenant       = "create_tenant"
	StepUpsertUser         = "upsert_user"
	StepSetOwner           = "set_tenant_owner"
	StepConfirmAlias       = "confirm_alias"
)

// Compensation actions.
const (
	ActionDeleteOrganization = "delete_organization"
	ActionDeleteUser         = "delete_idp_user"
	ActionReleaseAlias       = "release_alias"
)

// Registration outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeFailure  = "failure"
)

// DefaultCompensationTimeout bounds compensation when Config leaves it unset.
const DefaultCompensationTimeout = 30 * time.Second

// Config configures the onboarding service.
type Config struct {
	// RootDomain is the domain tenants' login URLs are built under.
	RootDomain string
	// CompensationTimeout bounds the rollback of a failed registration. Rollback
	// ignores the caller's cancellation.
	CompensationTimeout time.Duration
	Logger              *slog.Logger
	Metrics             Metrics
}

// RegisterRequest is a validated registration.
type RegisterRequest struct {
	Email            string
	Password         string
	FullName         string
	OrganizationName string
	Alias            string
}

// RegisterResult describes a provisioned tenant.
type RegisterResult struct {
	TenantID              uuid.UUID `json:"tenantId"`
	Alias                 string    `json:"alias"`
	OrganizationName      string    `json:"organizationName"`
	IdentityProviderOrgID string    `json:"identityProviderOrgId"`
	LoginURL              string    `json:"loginUrl"`
}

// Service onboards tenants.
type Service struct {
	aliases AliasReservationStore
	tenants TenantStore
	users   UserDirectory
	idp     idp.Gateway
	events  EventEmitter
	metrics Metrics
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

// NewService creates an onboarding service. A nil emitter drops events.
func NewService(
	cfg Config,
	aliases AliasReservationStore,
	tenants TenantStore,
	users UserDirectory,
	gateway idp.Gateway,
	events EventEmitter,
) *Service {
	if cfg.RootDomain == "" {
		cfg.RootDomain = "crm.com"
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = DefaultCompensationTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if events == nil {
		events = nopEmitter{}
	}
	return &Service{
		aliases: aliases,
		tenants: tenants,
		users:   users,
		idp:     gateway,
		events:  events,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// sagaState records what one registration has done so far. It lives for a
// single Register call.
type sagaState struct {
	alias         string
	aliasReserved bool
	orgID         string
	user          provisionedUser
	tenantID      uuid.UUID
	localUserID   uuid.UUID
}

// Register provisions a tenant. It returns *ConflictError when the alias or
// organization is already taken and *ProvisioningError for any other failure.
// On failure the organization, any IdP user created here, and the alias
// reservation are removed before returning.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	logger := s.logger.With("alias", req.Alias)
	st := &sagaState{alias: req.Alias}

	if err := s.aliases.Reserve(ctx, req.Alias); err != nil {
		s.stepFailed(logger, StepReserveAlias, err)
		if errors.Is(err, domain.ErrAliasTaken) {
			s.metrics.RegistrationFinished(OutcomeConflict)
			return nil, &ConflictError{Alias: req.Alias, Err: domain.ErrAliasTaken}
		}
		s.metrics.RegistrationFinished(OutcomeFailure)
		return nil, &ProvisioningError{Step: StepReserveAlias, Cause: err}
	}
	st.aliasReserved = true
	logger.Info("saga step completed", "step", StepReserveAlias)

	if err := s.provision(ctx, logger, st, req); err != nil {
		if cerr := s.compensate(ctx, logger, st); cerr != nil {
			logger.Error("compensation incomplete", "error", cerr)
		}
		return nil, s.classify(req.Alias, err)
	}

	s.events.Emit(ctx, domain.TenantProvisioned{
		TenantID:         st.tenantID,
		OrganizationName: req.OrganizationName,
		AdminEmail:       req.Email,
		OccurredAt:       s.now().UTC(),
	})

	s.metrics.RegistrationFinished(OutcomeSuccess)
	logger.Info("tenant registered", "tenant_id", st.tenantID, "org_id", st.orgID, "user_id", st.localUserID)

	return &RegisterResult{
		TenantID:              st.tenantID,
		Alias:                 req.Alias,
		OrganizationName:      req.OrganizationName,
		IdentityProviderOrgID: st.orgID,
		LoginURL:              s.LoginURL(req.Alias),
	}, nil
}

// LoginURL returns the login page of the tenant with the given alias.
func (s *Service) LoginURL(alias string) string {
	return fmt.Sprintf("https://%s.%s/login", alias, s.cfg.RootDomain)
}

// provision runs every step after the alias reservation. Each completed step is
// recorded in st before the next one starts.
func (s *Service) provision(ctx context.Context, logger *slog.Logger, st *sagaState, req RegisterRequest) error {
	err := s.step(logger, StepCreateOrganization, func() error {
		org, err := s.idp.CreateOrganization(ctx, req.OrganizationName, req.Alias)
		if err != nil {
			return err
		}
		st.orgID = org.ID
		return nil
	})
	if err != nil {
		return err
	}

	err = s.step(logger, StepProvisionUser, func() error {
		user, err := s.findOrCreateUser(ctx, req)
		if err != nil {
			return err
		}
		st.user = user
		return nil
	})
	if err != nil {
		return err
	}

	err = s.step(logger, StepAddMember, func() error {
		return s.idp.AddUserToOrganization(ctx, st.orgID, st.user.identityProviderUserID())
	})
	if err != nil {
		return err
	}

	err = s.step(logger, StepCreateTenant, func() error {
		tenant := &domain.Tenant{
			IdentityProviderOrgID: st.orgID,
			Alias:                 req.Alias,
			Name:                  req.OrganizationName,
			SubscriptionPlan:      domain.SubscriptionPlanFree,
			Status:                domain.TenantStatusActive,
		}
		if err := s.tenants.Create(ctx, tenant); err != nil {
			return err
		}
		st.tenantID = tenant.ID
		return nil
	})
	if err != nil {
		return err
	}

	err = s.step(logger, StepUpsertUser, func() error {
		firstName, lastName := domain.SplitFullName(req.FullName)
		user, err := s.users.UpsertWithTenantMembership(ctx,
			st.user.identityProviderUserID(),
			req.Email,
			domain.UserProfile{
				FirstName:    firstName,
				LastName:     lastName,
				PlatformRole: domain.PlatformRoleUser,
				Status:       domain.UserStatusActive,
			},
			[]domain.TenantMembership{{
				TenantID: st.tenantID,
				Roles:    []string{domain.TenantRoleOwner},
				JoinedAt: s.now().UTC(),
			}},
		)
		if err != nil {
			return err
		}
		st.localUserID = user.ID
		return nil
	})
	if err != nil {
		return err
	}

	err = s.step(logger, StepSetOwner, func() error {
		return s.tenants.UpdateOwner(ctx, st.tenantID, st.localUserID)
	})
	if err != nil {
		return err
	}

	return s.step(logger, StepConfirmAlias, func() error {
		return s.aliases.Confirm(ctx, req.Alias)
	})
}

// findOrCreateUser reuses the IdP user registered under the email, or creates
// one. A user created concurrently by someone else is reused, not deleted later.
func (s *Service) findOrCreateUser(ctx context.Context, req RegisterRequest) (provisionedUser, error) {
	existing, err := s.idp.FindUserByEmail(ctx, req.Email)
	if err == nil {
		return reusedUser{id: existing.ID}, nil
	}
	if !errors.Is(err, idp.ErrUserNotFound) {
		return nil, err
	}

	created, err := s.idp.CreateUser(ctx, req.Email, req.Password, req.FullName)
	if err == nil {
		return createdUser{id: created.ID}, nil
	}
	if !errors.Is(err, idp.ErrUserExists) {
		return nil, err
	}

	existing, err = s.idp.FindUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	return reusedUser{id: existing.ID}, nil
}

func (s *Service) step(logger *slog.Logger, name string, fn func() error) error {
	if err := fn(); err != nil {
		s.stepFailed(logger, name, err)
		return &stepError{step: name, err: err}
	}
	logger.Info("saga step completed", "step", name)
	return nil
}

func (s *Service) stepFailed(logger *slog.Logger, name string, err error) {
	s.metrics.StepFailed(name)
	logger.Error("saga step failed", "step", name, "error", err)
}

// compensate undoes the IdP side of a failed registration and releases the
// alias. Every action is attempted even if an earlier one fails. Local tenant
// and user rows are left in place.
func (s *Service) compensate(ctx context.Context, logger *slog.Logger, st *sagaState) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()

	var result *multierror.Error

	if st.orgID != "" {
		if err := s.idp.DeleteOrganization(ctx, st.orgID); err != nil {
			result = multierror.Append(result, s.compensationFailed(logger, ActionDeleteOrganization, err))
		} else {
			logger.Info("compensation applied", "action", ActionDeleteOrganization, "org_id", st.orgID)
		}
	}

	switch u := st.user.(type) {
	case createdUser:
		if err := s.idp.DeleteUser(ctx, u.id); err != nil {
			result = multierror.Append(result, s.compensationFailed(logger, ActionDeleteUser, err))
		} else {
			logger.Info("compensation applied", "action", ActionDeleteUser, "idp_user_id", u.id)
		}
	case reusedUser:
		logger.Info("keeping pre-existing identity provider user", "idp_user_id", u.id)
	}

	if st.aliasReserved {
		if err := s.aliases.Delete(ctx, st.alias); err != nil {
			result = multierror.Append(result, s.compensationFailed(logger, ActionReleaseAlias, err))
		} else {
			logger.Info("compensation applied", "action", ActionReleaseAlias)
		}
	}

	if st.tenantID != uuid.Nil {
		logger.Warn("tenant row left without rollback", "tenant_id", st.tenantID)
	}

	return result.ErrorOrNil()
}

func (s *Service) compensationFailed(logger *slog.Logger, action string, err error) error {
	s.metrics.CompensationFailed(action)
	logger.Error("compensation failed", "action", action, "error", err)
	return fmt.Errorf("%s: %w", action, err)
}

// classify maps a step failure onto the two errors callers can see.
func (s *Service) classify(alias string, err error) error {
	step := ""
	var se *stepError
	if errors.As(err, &se) {
		step = se.step
	}

	switch {
	case errors.Is(err, domain.ErrAliasTaken):
		s.metrics.RegistrationFinished(OutcomeConflict)
		return &ConflictError{Alias: alias, Err: domain.ErrAliasTaken}
	case errors.Is(err, idp.ErrOrganizationExists):
		s.metrics.RegistrationFinished(OutcomeConflict)
		return &ConflictError{Alias: alias, Err: idp.ErrOrganizationExists}
	case errors.Is(err, domain.ErrTenantAlreadyExists):
		s.metrics.RegistrationFinished(OutcomeConflict)
		return &ConflictError{Alias: alias, Err: domain.ErrTenantAlreadyExists}
	}

	s.metrics.RegistrationFinished(OutcomeFailure)
	return &ProvisioningError{Step: step, Cause: err}
}
