package idp

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-onboarding/pkg/domain"
)

// Operation names accepted by MemoryGateway.FailOn.
const (
	OpCreateOrganization    = "CreateOrganization"
	OpDeleteOrganization    = "DeleteOrganization"
	OpFindUserByEmail       = "FindUserByEmail"
	OpCreateUser            = "CreateUser"
	OpDeleteUser            = "DeleteUser"
	OpAddUserToOrganization = "AddUserToOrganization"
)

// MemoryGateway is an in-process Gateway for local runs and tests. Any
// operation can be made to fail with FailOn.
type MemoryGateway struct {
	mu      sync.Mutex
	orgs    map[string]Organization
	users   map[string]User
	members map[string]map[string]struct{}
	failOn  map[string]error
	calls   map[string]int
}

// NewMemoryGateway creates an empty in-memory IdP.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		orgs:    map[string]Organization{},
		users:   map[string]User{},
		members: map[string]map[string]struct{}{},
		failOn:  map[string]error{},
		calls:   map[string]int{},
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (g *MemoryGateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failOn, op)
		return
	}
	g.failOn[op] = err
}

// Calls returns how many times op was invoked, including failed calls.
func (g *MemoryGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// SeedUser adds a pre-existing user and returns it.
func (g *MemoryGateway) SeedUser(email, fullName string) User {
	g.mu.Lock()
	defer g.mu.Unlock()
	first, last := domain.SplitFullName(fullName)
	u := User{ID: uuid.NewString(), Email: email, FirstName: first, LastName: last, Username: email}
	g.users[u.ID] = u
	return u
}

// HasOrganization reports whether an organization with the id exists.
func (g *MemoryGateway) HasOrganization(orgID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.orgs[orgID]
	return ok
}

// OrganizationCount returns the number of organizations.
func (g *MemoryGateway) OrganizationCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orgs)
}

// HasUser reports whether a user with the id exists.
func (g *MemoryGateway) HasUser(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.users[userID]
	return ok
}

// UserCount returns the number of users.
func (g *MemoryGateway) UserCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.users)
}

// IsMember reports whether the user belongs to the organization.
func (g *MemoryGateway) IsMember(orgID, userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.members[orgID][userID]
	return ok
}

func (g *MemoryGateway) enter(op string) error {
	g.calls[op]++
	return g.failOn[op]
}

func (g *MemoryGateway) CreateOrganization(_ context.Context, name, alias string) (*Organization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpCreateOrganization); err != nil {
		return nil, err
	}

	for _, o := range g.orgs {
		if o.Alias == alias || o.Name == name {
			return nil, ErrOrganizationExists
		}
	}
	org := Organization{ID: uuid.NewString(), Name: name, Alias: alias}
	g.orgs[org.ID] = org
	g.members[org.ID] = map[string]struct{}{}
	return &org, nil
}

func (g *MemoryGateway) DeleteOrganization(_ context.Context, orgID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpDeleteOrganization); err != nil {
		return err
	}
	delete(g.orgs, orgID)
	delete(g.members, orgID)
	return nil
}

func (g *MemoryGateway) FindUserByEmail(_ context.Context, email string) (*User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpFindUserByEmail); err != nil {
		return nil, err
	}
	for _, u := range g.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (g *MemoryGateway) CreateUser(_ context.Context, email, _, fullName string) (*User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpCreateUser); err != nil {
		return nil, err
	}
	for _, u := range g.users {
		if u.Email == email {
			return nil, ErrUserExists
		}
	}
	first, last := domain.SplitFullName(fullName)
	u := User{ID: uuid.NewString(), Email: email, FirstName: first, LastName: last, Username: email}
	g.users[u.ID] = u
	return &u, nil
}

func (g *MemoryGateway) DeleteUser(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpDeleteUser); err != nil {
		return err
	}
	delete(g.users, userID)
	for _, m := range g.members {
		delete(m, userID)
	}
	return nil
}

func (g *MemoryGateway) AddUserToOrganization(_ context.Context, orgID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpAddUserToOrganization); err != nil {
		return err
	}
	m, ok := g.members[orgID]
	if !ok {
		return &APIError{Op: "add organization member", StatusCode: 404, Body: "organization not found"}
	}
	if _, ok := g.users[userID]; !ok {
		return &APIError{Op: "add organization member", StatusCode: 404, Body: "user not found"}
	}
	m[userID] = struct{}{}
	return nil
}
