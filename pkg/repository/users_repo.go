package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/simple-onboarding/pkg/domain"
)

// UsersRepository handles platform user persistence, including tenant memberships.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

const userColumns = `id, email, first_name, last_name, identity_provider_user_id, platform_role, status, created_at, updated_at`

// Create creates a new user without memberships.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	return r.CreateTx(ctx, r.db, user)
}

// CreateTx creates a new user within a transaction.
func (r *UsersRepository) CreateTx(ctx context.Context, q Querier, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	applyUserDefaults(user)
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, first_name, last_name, identity_provider_user_id, platform_role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.ExecContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, nullString(user.IdentityProviderUserID),
		user.PlatformRole, user.Status, user.CreatedAt, user.UpdatedAt,
	)
	if _, ok := isUniqueViolation(err); ok {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// GetByID retrieves a user and their memberships by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user and their memberships by email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByIdentityProviderUserID retrieves a user by their identity provider user ID.
func (r *UsersRepository) GetByIdentityProviderUserID(ctx context.Context, idpUserID string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE identity_provider_user_id = $1`, idpUserID)
}

func (r *UsersRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	user.Tenants, err = listMemberships(ctx, r.db, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpsertWithTenantMembership creates the user identified by email if absent, or
// reuses the existing one, then grants each membership. An existing user keeps
// their profile; only a missing identity provider link is filled in.
//
// Calling it twice with the same arguments leaves exactly one membership per
// tenant, with the union of the granted roles.
func (r *UsersRepository) UpsertWithTenantMembership(
	ctx context.Context,
	idpUserID, email string,
	profile domain.UserProfile,
	memberships []domain.TenantMembership,
) (*domain.User, error) {
	candidate := &domain.User{
		ID:                     uuid.New(),
		Email:                  email,
		FirstName:              profile.FirstName,
		LastName:               profile.LastName,
		IdentityProviderUserID: idpUserID,
		PlatformRole:           profile.PlatformRole,
		Status:                 profile.Status,
	}
	applyUserDefaults(candidate)
	now := time.Now().UTC()

	var user *domain.User
	err := Tx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO users (id, email, first_name, last_name, identity_provider_user_id, platform_role, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			ON CONFLICT (email) DO UPDATE
			SET identity_provider_user_id = COALESCE(NULLIF(users.identity_provider_user_id, ''), EXCLUDED.identity_provider_user_id),
			    updated_at = EXCLUDED.updated_at
			RETURNING ` + userColumns
		var err error
		user, err = scanUser(tx.QueryRowContext(ctx, query,
			candidate.ID, candidate.Email, candidate.FirstName, candidate.LastName,
			nullString(candidate.IdentityProviderUserID), candidate.PlatformRole, candidate.Status, now,
		))
		if err != nil {
			return err
		}

		for _, m := range memberships {
			if err := addMembership(ctx, tx, user.ID, m); err != nil {
				return err
			}
		}

		user.Tenants, err = listMemberships(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AddMembership grants a tenant membership to a user. Granting a membership that
// already exists merges the roles.
func (r *UsersRepository) AddMembership(ctx context.Context, userID uuid.UUID, m domain.TenantMembership) error {
	return addMembership(ctx, r.db, userID, m)
}

// ListMemberships retrieves all tenant memberships of a user.
func (r *UsersRepository) ListMemberships(ctx context.Context, userID uuid.UUID) ([]domain.TenantMembership, error) {
	return listMemberships(ctx, r.db, userID)
}

func addMembership(ctx context.Context, q Querier, userID uuid.UUID, m domain.TenantMembership) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO user_tenant_memberships (user_id, tenant_id, roles, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, tenant_id) DO UPDATE
		SET roles = ARRAY(SELECT DISTINCT unnest(user_tenant_memberships.roles || EXCLUDED.roles))
	`
	_, err := q.ExecContext(ctx, query, userID, m.TenantID, pq.Array(m.Roles), m.JoinedAt)
	return err
}

func listMemberships(ctx context.Context, q Querier, userID uuid.UUID) ([]domain.TenantMembership, error) {
	query := `
		SELECT tenant_id, roles, joined_at
		FROM user_tenant_memberships
		WHERE user_id = $1
		ORDER BY joined_at ASC
	`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memberships := []domain.TenantMembership{}
	for rows.Next() {
		var m domain.TenantMembership
		if err := rows.Scan(&m.TenantID, pq.Array(&m.Roles), &m.JoinedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		user      domain.User
		idpUserID sql.NullString
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &idpUserID,
		&user.PlatformRole, &user.Status, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	user.IdentityProviderUserID = idpUserID.String
	return &user, nil
}

func applyUserDefaults(user *domain.User) {
	if user.PlatformRole == "" {
		user.PlatformRole = domain.PlatformRoleUser
	}
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
