package onboarding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-onboarding/pkg/domain"
	"github.com/tendant/simple-onboarding/pkg/idp"
	"github.com/tendant/simple-onboarding/pkg/repository"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.TenantProvisioned
}

func (e *recordingEmitter) Emit(_ context.Context, event domain.TenantProvisioned) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

type recordingMetrics struct {
	mu            sync.Mutex
	outcomes      map[string]int
	stepFailures  map[string]int
	compensations map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		outcomes:      map[string]int{},
		stepFailures:  map[string]int{},
		compensations: map[string]int{},
	}
}

func (m *recordingMetrics) RegistrationFinished(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *recordingMetrics) StepFailed(step string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepFailures[step]++
}

func (m *recordingMetrics) CompensationFailed(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensations[action]++
}

type fixture struct {
	svc     *Service
	aliases *repository.MemoryAliasReservations
	tenants *repository.MemoryTenants
	users   *repository.MemoryUsers
	idp     *idp.MemoryGateway
	events  *recordingEmitter
	metrics *recordingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithGateway(t, nil)
}

// newFixtureWithGateway wires the service to wrap, if given, instead of the
// fixture's memory gateway.
func newFixtureWithGateway(t *testing.T, wrap func(*idp.MemoryGateway) idp.Gateway) *fixture {
	t.Helper()
	f := &fixture{
		aliases: repository.NewMemoryAliasReservations(domain.AliasReservationTTL, nil),
		tenants: repository.NewMemoryTenants(),
		users:   repository.NewMemoryUsers(),
		idp:     idp.NewMemoryGateway(),
		events:  &recordingEmitter{},
		metrics: newRecordingMetrics(),
	}
	var gateway idp.Gateway = f.idp
	if wrap != nil {
		gateway = wrap(f.idp)
	}
	f.svc = NewService(Config{
		RootDomain: "crm.test",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:    f.metrics,
	}, f.aliases, f.tenants, f.users, gateway, f.events)
	return f
}

func acmeRequest() RegisterRequest {
	return RegisterRequest{
		Email:            "admin@acme.test",
		Password:         "Password123!",
		FullName:         "Jane Doe",
		OrganizationName: "Acme Corp",
		Alias:            "acme",
	}
}

// assertRolledBack checks that nothing created for alias survived a failed registration.
func assertRolledBack(t *testing.T, f *fixture, alias string) {
	t.Helper()
	_, err := f.aliases.Get(context.Background(), alias)
	assert.ErrorIs(t, err, domain.ErrAliasReservationNotFound, "alias reservation should be released")
	assert.Zero(t, f.idp.OrganizationCount(), "organization should be deleted")
}

func TestRegister_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.svc.Register(ctx, acmeRequest())
	require.NoError(t, err)

	assert.Equal(t, "acme", result.Alias)
	assert.Equal(t, "Acme Corp", result.OrganizationName)
	assert.NotEmpty(t, result.IdentityProviderOrgID)
	assert.Equal(t, "https://acme.crm.test/login", result.LoginURL)

	tenant, err := f.svc.FindTenantByID(ctx, result.TenantID)
	require.NoError(t, err)
	assert.Equal(t, result.IdentityProviderOrgID, tenant.IdentityProviderOrgID)
	assert.Equal(t, domain.SubscriptionPlanFree, tenant.SubscriptionPlan)
	require.True(t, tenant.HasOwner())

	user, err := f.users.GetByEmail(ctx, "admin@acme.test")
	require.NoError(t, err)
	assert.Equal(t, user.ID, *tenant.OwnerID)
	assert.Equal(t, "Jane", user.FirstName)
	assert.Equal(t, "Doe", user.LastName)
	require.Len(t, user.Tenants, 1)
	assert.Equal(t, result.TenantID, user.Tenants[0].TenantID)
	assert.True(t, user.Tenants[0].HasRole(domain.TenantRoleOwner))

	res, err := f.aliases.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.AliasConfirmed, res.Status)
	assert.Nil(t, res.ExpiresAt)

	assert.True(t, f.idp.IsMember(result.IdentityProviderOrgID, user.IdentityProviderUserID))

	require.Len(t, f.events.events, 1)
	assert.Equal(t, result.TenantID, f.events.events[0].TenantID)
	assert.Equal(t, "Acme Corp", f.events.events[0].OrganizationName)
	assert.Equal(t, "admin@acme.test", f.events.events[0].AdminEmail)

	assert.Equal(t, 1, f.metrics.outcomes[OutcomeSuccess])
}

func TestRegister_DuplicateAlias(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Register(ctx, acmeRequest())
	require.NoError(t, err)

	second := acmeRequest()
	second.Email = "other@acme.test"
	second.OrganizationName = "Acme Two"
	_, err = f.svc.Register(ctx, second)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, domain.ErrAliasTaken)
	assert.Equal(t, "acme", conflict.Alias)

	assert.Equal(t, 1, f.idp.Calls(idp.OpCreateOrganization), "losing call must not touch the IdP")
	assert.Equal(t, 1, f.idp.UserCount())

	tenant, err := f.svc.FindTenantByAlias(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, first.TenantID, tenant.ID)

	res, err := f.aliases.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.AliasConfirmed, res.Status, "winner's reservation must survive")
	assert.Equal(t, 1, f.metrics.outcomes[OutcomeConflict])
}

func TestRegister_FailureAtAddMemberRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("keycloak unavailable")
	f.idp.FailOn(idp.OpAddUserToOrganization, boom)

	_, err := f.svc.Register(ctx, acmeRequest())

	var provisioning *ProvisioningError
	require.ErrorAs(t, err, &provisioning)
	var conflict *ConflictError
	assert.False(t, errors.As(err, &conflict))
	assert.Equal(t, StepAddMember, provisioning.Step)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, provisioningFailedMessage, err.Error())
	assert.NotContains(t, err.Error(), "keycloak")

	assertRolledBack(t, f, "acme")
	assert.Zero(t, f.idp.UserCount(), "user created by the saga should be deleted")
	assert.Zero(t, f.tenants.Len())
	assert.Empty(t, f.events.events)
	assert.Equal(t, 1, f.metrics.stepFailures[StepAddMember])
	assert.Equal(t, 1, f.metrics.outcomes[OutcomeFailure])

	// The alias is immediately available for a retry.
	f.idp.FailOn(idp.OpAddUserToOrganization, nil)
	_, err = f.svc.Register(ctx, acmeRequest())
	require.NoError(t, err)
}

func TestRegister_ReusesExistingIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	existing := f.idp.SeedUser("admin@acme.test", "Jane Doe")

	_, err := f.svc.Register(ctx, acmeRequest())
	require.NoError(t, err)
	assert.Zero(t, f.idp.Calls(idp.OpCreateUser))
	assert.Equal(t, 1, f.idp.UserCount())

	// A second organization for the same person fails mid-saga.
	f.idp.FailOn(idp.OpAddUserToOrganization, errors.New("timeout"))
	beta := acmeRequest()
	beta.OrganizationName = "Beta LLC"
	beta.Alias = "beta"
	_, err = f.svc.Register(ctx, beta)

	var provisioning *ProvisioningError
	require.ErrorAs(t, err, &provisioning)
	assert.True(t, f.idp.HasUser(existing.ID), "pre-existing IdP user must never be deleted")
	assert.Zero(t, f.idp.Calls(idp.OpDeleteUser))

	_, err = f.aliases.Get(ctx, "beta")
	assert.ErrorIs(t, err, domain.ErrAliasReservationNotFound)
	assert.Equal(t, 1, f.idp.OrganizationCount(), "only acme's organization remains")
}

func TestRegister_SecondTenantForSameUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Register(ctx, acmeRequest())
	require.NoError(t, err)

	beta := acmeRequest()
	beta.OrganizationName = "Beta LLC"
	beta.Alias = "beta"
	second, err := f.svc.Register(ctx, beta)
	require.NoError(t, err)

	assert.Equal(t, 1, f.idp.Calls(idp.OpCreateUser))
	assert.Equal(t, 1, f.users.Len())

	user, err := f.users.GetByEmail(ctx, "admin@acme.test")
	require.NoError(t, err)
	require.Len(t, user.Tenants, 2)
	for _, id := range []uuid.UUID{first.TenantID, second.TenantID} {
		tenant, err := f.tenants.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, user.ID, *tenant.OwnerID)
	}
}

func TestRegister_ConcurrentSameAlias(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	emails := []string{"one@acme.test", "two@acme.test"}
	errs := make([]error, len(emails))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			<-start
			req := acmeRequest()
			req.Email = email
			_, errs[i] = f.svc.Register(ctx, req)
		}(i, email)
	}
	close(start)
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		var conflict *ConflictError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, f.idp.OrganizationCount())
	assert.Equal(t, 1, f.idp.UserCount())
	assert.Equal(t, 1, f.tenants.Len())
}

func TestRegister_OrganizationConflictAfterReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// The IdP already has the organization even though no local reservation exists.
	_, err := f.idp.CreateOrganization(ctx, "Acme Corp", "acme")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, acmeRequest())

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, idp.ErrOrganizationExists)
	assert.Zero(t, f.idp.Calls(idp.OpCreateUser))

	_, err = f.aliases.Get(ctx, "acme")
	assert.ErrorIs(t, err, domain.ErrAliasReservationNotFound, "reservation is released even for conflicts")
}

func TestRegister_CompensationContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.idp.FailOn(idp.OpAddUserToOrganization, errors.New("add member failed"))
	f.idp.FailOn(idp.OpDeleteOrganization, errors.New("delete org failed"))

	_, err := f.svc.Register(ctx, acmeRequest())

	var provisioning *ProvisioningError
	require.ErrorAs(t, err, &provisioning)
	assert.Equal(t, StepAddMember, provisioning.Step, "compensation errors never replace the cause")

	assert.Equal(t, 1, f.idp.Calls(idp.OpDeleteUser))
	assert.Zero(t, f.idp.UserCount())
	_, err = f.aliases.Get(ctx, "acme")
	assert.ErrorIs(t, err, domain.ErrAliasReservationNotFound)
	assert.Equal(t, 1, f.metrics.compensations[ActionDeleteOrganization])
}

type failingUsers struct {
	err error
}

func (u failingUsers) UpsertWithTenantMembership(context.Context, string, string, domain.UserProfile, []domain.TenantMembership) (*domain.User, error) {
	return nil, u.err
}

func TestRegister_UpsertFailureLeavesTenantRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("write conflict")
	f.svc.users = failingUsers{err: boom}

	_, err := f.svc.Register(ctx, acmeRequest())

	var provisioning *ProvisioningError
	require.ErrorAs(t, err, &provisioning)
	assert.Equal(t, StepUpsertUser, provisioning.Step)
	assertRolledBack(t, f, "acme")
	assert.Zero(t, f.idp.UserCount())

	// Local tenant rows are not compensated.
	assert.Equal(t, 1, f.tenants.Len())
	tenant, err := f.tenants.GetByAlias(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, tenant.HasOwner())
}

type failingReservations struct {
	*repository.MemoryAliasReservations
	err error
}

func (r failingReservations) Reserve(context.Context, string) error {
	return r.err
}

func TestRegister_ReservationStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.svc.aliases = failingReservations{MemoryAliasReservations: f.aliases, err: errors.New("db down")}

	_, err := f.svc.Register(context.Background(), acmeRequest())

	var provisioning *ProvisioningError
	require.ErrorAs(t, err, &provisioning)
	assert.Equal(t, StepReserveAlias, provisioning.Step)
	assert.Zero(t, f.idp.Calls(idp.OpCreateOrganization))
	assert.Zero(t, f.idp.Calls(idp.OpDeleteOrganization))
}

// cancellingGateway cancels the caller's context when members are added and
// records whether compensation saw a live context.
type cancellingGateway struct {
	*idp.MemoryGateway
	cancel        context.CancelFunc
	deleteCtxErrs []error
}

func (g *cancellingGateway) AddUserToOrganization(ctx context.Context, _, _ string) error {
	g.cancel()
	return ctx.Err()
}

func (g *cancellingGateway) DeleteOrganization(ctx context.Context, orgID string) error {
	g.deleteCtxErrs = append(g.deleteCtxErrs, ctx.Err())
	return g.MemoryGateway.DeleteOrganization(ctx, orgID)
}

func TestRegister_CompensationSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gw *cancellingGateway
	f := newFixtureWithGateway(t, func(m *idp.MemoryGateway) idp.Gateway {
		gw = &cancellingGateway{MemoryGateway: m, cancel: cancel}
		return gw
	})

	_, err := f.svc.Register(ctx, acmeRequest())
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, gw.deleteCtxErrs, 1)
	assert.NoError(t, gw.deleteCtxErrs[0])
	assertRolledBack(t, f, "acme")
}

// racingGateway hides the user from the first lookup, as if another
// registration created it between lookup and creation.
type racingGateway struct {
	*idp.MemoryGateway
	lookups int
}

func (g *racingGateway) FindUserByEmail(ctx context.Context, email string) (*idp.User, error) {
	g.lookups++
	if g.lookups == 1 {
		return nil, idp.ErrUserNotFound
	}
	return g.MemoryGateway.FindUserByEmail(ctx, email)
}

func TestRegister_UserCreatedConcurrentlyIsReused(t *testing.T) {
	var gw *racingGateway
	f := newFixtureWithGateway(t, func(m *idp.MemoryGateway) idp.Gateway {
		gw = &racingGateway{MemoryGateway: m}
		return gw
	})
	existing := f.idp.SeedUser("admin@acme.test", "Jane Doe")
	f.idp.FailOn(idp.OpAddUserToOrganization, errors.New("boom"))

	_, err := f.svc.Register(context.Background(), acmeRequest())
	require.Error(t, err)

	assert.Equal(t, 2, gw.lookups)
	assert.True(t, f.idp.HasUser(existing.ID), "a user this saga did not create must survive rollback")
}

func TestCheckAliasAvailability(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	f := newFixture(t)
	f.aliases = repository.NewMemoryAliasReservations(30*time.Minute, func() time.Time { return clock })
	f.svc.aliases = f.aliases
	f.svc.now = func() time.Time { return clock }

	available, err := f.svc.CheckAliasAvailability(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, available)

	require.NoError(t, f.aliases.Reserve(ctx, "acme"))
	available, err = f.svc.CheckAliasAvailability(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, available, "a live reservation holds the alias")

	clock = now.Add(31 * time.Minute)
	available, err = f.svc.CheckAliasAvailability(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, available, "an expired reservation frees the alias")

	_, err = f.svc.Register(ctx, acmeRequest())
	require.NoError(t, err)
	available, err = f.svc.CheckAliasAvailability(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestRegister_ExpiredReservationIsReclaimed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	f := newFixture(t)
	f.aliases = repository.NewMemoryAliasReservations(30*time.Minute, func() time.Time { return clock })
	f.svc.aliases = f.aliases

	// A registration that crashed after reserving.
	require.NoError(t, f.aliases.Reserve(ctx, "acme"))

	_, err := f.svc.Register(ctx, acmeRequest())
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	clock = now.Add(30 * time.Minute)
	_, err = f.svc.Register(ctx, acmeRequest())
	require.NoError(t, err)
}

func TestConflictError_Message(t *testing.T) {
	err := &ConflictError{Alias: "acme", Err: domain.ErrAliasTaken}
	if got, want := err.Error(), "organization alias is already taken: acme"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
