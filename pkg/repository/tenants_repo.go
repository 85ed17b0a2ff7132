package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-onboarding/pkg/domain"
)

// TenantsRepository handles tenant data persistence.
type TenantsRepository struct {
	db *sql.DB
}

// NewTenantsRepository creates a new tenants repository.
func NewTenantsRepository(db *sql.DB) *TenantsRepository {
	return &TenantsRepository{db: db}
}

const tenantColumns = `id, identity_provider_org_id, alias, name, owner_id, subscription_plan, status, created_at, updated_at`

// Create creates a new tenant. The ID, timestamps, plan and status are filled in
// when left empty.
func (r *TenantsRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	return r.CreateTx(ctx, r.db, tenant)
}

// CreateTx creates a new tenant within a transaction.
func (r *TenantsRepository) CreateTx(ctx context.Context, q Querier, tenant *domain.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	applyTenantDefaults(tenant)
	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now

	query := `
		INSERT INTO tenants (id, identity_provider_org_id, alias, name, owner_id, subscription_plan, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.ExecContext(ctx, query,
		tenant.ID,
		tenant.IdentityProviderOrgID,
		tenant.Alias,
		tenant.Name,
		tenant.OwnerID,
		tenant.SubscriptionPlan,
		tenant.Status,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if constraint, ok := isUniqueViolation(err); ok {
		if constraint == "tenants_alias_key" {
			return domain.ErrAliasTaken
		}
		return domain.ErrTenantAlreadyExists
	}
	return err
}

// GetByID retrieves a tenant by ID.
func (r *TenantsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
}

// GetByAlias retrieves a tenant by alias.
func (r *TenantsRepository) GetByAlias(ctx context.Context, alias string) (*domain.Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE alias = $1`, alias)
}

// GetByIdentityProviderOrgID retrieves a tenant by its identity provider organization ID.
func (r *TenantsRepository) GetByIdentityProviderOrgID(ctx context.Context, orgID string) (*domain.Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE identity_provider_org_id = $1`, orgID)
}

func (r *TenantsRepository) getOne(ctx context.Context, query string, arg any) (*domain.Tenant, error) {
	var (
		tenant domain.Tenant
		owner  uuid.NullUUID
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&tenant.ID,
		&tenant.IdentityProviderOrgID,
		&tenant.Alias,
		&tenant.Name,
		&owner,
		&tenant.SubscriptionPlan,
		&tenant.Status,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	if owner.Valid {
		tenant.OwnerID = &owner.UUID
	}
	return &tenant, nil
}

// UpdateOwner sets the owning user of a tenant.
func (r *TenantsRepository) UpdateOwner(ctx context.Context, tenantID, userID uuid.UUID) error {
	query := `
		UPDATE tenants
		SET owner_id = $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, userID, tenantID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}

// Update updates the mutable fields of a tenant. The alias is immutable.
func (r *TenantsRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $1, subscription_plan = $2, status = $3, updated_at = NOW()
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		tenant.Name,
		tenant.SubscriptionPlan,
		tenant.Status,
		tenant.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}

func applyTenantDefaults(tenant *domain.Tenant) {
	if tenant.SubscriptionPlan == "" {
		tenant.SubscriptionPlan = domain.SubscriptionPlanFree
	}
	if tenant.Status == "" {
		tenant.Status = domain.TenantStatusActive
	}
}
