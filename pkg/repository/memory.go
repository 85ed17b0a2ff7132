package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-onboarding/pkg/domain"
)

// MemoryAliasReservations is an in-process alias reservation store used when no
// database is configured and in tests. It honors the same TTL semantics as the
// Postgres store.
type MemoryAliasReservations struct {
	mu           sync.Mutex
	ttl          time.Duration
	now          func() time.Time
	reservations map[string]domain.AliasReservation
}

// NewMemoryAliasReservations creates an empty store. A nil clock means time.Now.
func NewMemoryAliasReservations(ttl time.Duration, now func() time.Time) *MemoryAliasReservations {
	if ttl <= 0 {
		ttl = domain.AliasReservationTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryAliasReservations{
		ttl:          ttl,
		now:          now,
		reservations: map[string]domain.AliasReservation{},
	}
}

func (r *MemoryAliasReservations) Reserve(_ context.Context, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if existing, ok := r.reservations[alias]; ok && !existing.IsExpired(now) {
		return domain.ErrAliasTaken
	}
	expiresAt := now.Add(r.ttl)
	r.reservations[alias] = domain.AliasReservation{
		Alias:     alias,
		Status:    domain.AliasReserved,
		CreatedAt: now,
		ExpiresAt: &expiresAt,
	}
	return nil
}

func (r *MemoryAliasReservations) Confirm(_ context.Context, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[alias]
	if !ok {
		return nil
	}
	res.Status = domain.AliasConfirmed
	res.ExpiresAt = nil
	r.reservations[alias] = res
	return nil
}

func (r *MemoryAliasReservations) Delete(_ context.Context, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reservations, alias)
	return nil
}

func (r *MemoryAliasReservations) Get(_ context.Context, alias string) (*domain.AliasReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[alias]
	if !ok {
		return nil, domain.ErrAliasReservationNotFound
	}
	return &res, nil
}

func (r *MemoryAliasReservations) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for alias, res := range r.reservations {
		if res.IsExpired(now) {
			delete(r.reservations, alias)
			n++
		}
	}
	return n, nil
}

// MemoryTenants is an in-process tenant store.
type MemoryTenants struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]domain.Tenant
}

func NewMemoryTenants() *MemoryTenants {
	return &MemoryTenants{tenants: map[uuid.UUID]domain.Tenant{}}
}

func (r *MemoryTenants) Create(_ context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tenants {
		if t.Alias == tenant.Alias {
			return domain.ErrAliasTaken
		}
		if t.IdentityProviderOrgID == tenant.IdentityProviderOrgID {
			return domain.ErrTenantAlreadyExists
		}
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	applyTenantDefaults(tenant)
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	r.tenants[tenant.ID] = *tenant
	return nil
}

func (r *MemoryTenants) GetByID(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return r.find(func(t domain.Tenant) bool { return t.ID == id })
}

func (r *MemoryTenants) GetByAlias(_ context.Context, alias string) (*domain.Tenant, error) {
	return r.find(func(t domain.Tenant) bool { return t.Alias == alias })
}

func (r *MemoryTenants) GetByIdentityProviderOrgID(_ context.Context, orgID string) (*domain.Tenant, error) {
	return r.find(func(t domain.Tenant) bool { return t.IdentityProviderOrgID == orgID })
}

func (r *MemoryTenants) find(match func(domain.Tenant) bool) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tenants {
		if match(t) {
			return &t, nil
		}
	}
	return nil, domain.ErrTenantNotFound
}

func (r *MemoryTenants) UpdateOwner(_ context.Context, tenantID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return domain.ErrTenantNotFound
	}
	t.OwnerID = &userID
	t.UpdatedAt = time.Now().UTC()
	r.tenants[tenantID] = t
	return nil
}

func (r *MemoryTenants) Update(_ context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[tenant.ID]
	if !ok {
		return domain.ErrTenantNotFound
	}
	t.Name = tenant.Name
	t.SubscriptionPlan = tenant.SubscriptionPlan
	t.Status = tenant.Status
	t.UpdatedAt = time.Now().UTC()
	r.tenants[tenant.ID] = t
	*tenant = t
	return nil
}

// Len returns the number of stored tenants.
func (r *MemoryTenants) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants)
}

// MemoryUsers is an in-process user directory.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domain.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: map[uuid.UUID]domain.User{}}
}

func (r *MemoryUsers) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail(user.Email); ok {
		return domain.ErrUserAlreadyExists
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	applyUserDefaults(user)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	stored.Tenants = nil
	r.users[user.ID] = stored
	return nil
}

func (r *MemoryUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail(email)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUsers) GetByIdentityProviderUserID(_ context.Context, idpUserID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.IdentityProviderUserID == idpUserID {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *MemoryUsers) UpsertWithTenantMembership(
	_ context.Context,
	idpUserID, email string,
	profile domain.UserProfile,
	memberships []domain.TenantMembership,
) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	u, ok := r.byEmail(email)
	if !ok {
		u = domain.User{
			ID:           uuid.New(),
			Email:        email,
			FirstName:    profile.FirstName,
			LastName:     profile.LastName,
			PlatformRole: profile.PlatformRole,
			Status:       profile.Status,
			CreatedAt:    now,
		}
		applyUserDefaults(&u)
	}
	if u.IdentityProviderUserID == "" {
		u.IdentityProviderUserID = idpUserID
	}
	u.UpdatedAt = now
	for _, m := range memberships {
		u.Tenants = mergeMembership(u.Tenants, m, now)
	}
	r.users[u.ID] = u
	return cloneUser(u), nil
}

func (r *MemoryUsers) AddMembership(_ context.Context, userID uuid.UUID, m domain.TenantMembership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Tenants = mergeMembership(u.Tenants, m, time.Now().UTC())
	r.users[userID] = u
	return nil
}

func (r *MemoryUsers) ListMemberships(_ context.Context, userID uuid.UUID) ([]domain.TenantMembership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return []domain.TenantMembership{}, nil
	}
	return cloneUser(u).Tenants, nil
}

// Len returns the number of stored users.
func (r *MemoryUsers) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *MemoryUsers) byEmail(email string) (domain.User, bool) {
	for _, u := range r.users {
		if u.Email == email {
			return u, true
		}
	}
	return domain.User{}, false
}

func mergeMembership(existing []domain.TenantMembership, m domain.TenantMembership, now time.Time) []domain.TenantMembership {
	for i := range existing {
		if existing[i].TenantID == m.TenantID {
			existing[i].Roles = domain.MergeRoles(existing[i].Roles, m.Roles)
			return existing
		}
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = now
	}
	m.Roles = domain.MergeRoles(nil, m.Roles)
	out := append(existing, m)
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

func cloneUser(u domain.User) *domain.User {
	tenants := make([]domain.TenantMembership, len(u.Tenants))
	for i, m := range u.Tenants {
		m.Roles = append([]string(nil), m.Roles...)
		tenants[i] = m
	}
	u.Tenants = tenants
	return &u
}
