package onboarding

// provisionedUser is the outcome of the find-or-create IdP user step.
// Compensation only deletes a createdUser.
type provisionedUser interface {
	identityProviderUserID() string
}

// reusedUser already existed in the IdP and may belong to other tenants.
type reusedUser struct{ id string }

// createdUser was created by this registration.
type createdUser struct{ id string }

func (u reusedUser) identityProviderUserID() string  { return u.id }
func (u createdUser) identityProviderUserID() string { return u.id }
