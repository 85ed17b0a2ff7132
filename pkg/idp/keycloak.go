package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/simple-onboarding/pkg/domain"
)

// tokenExpirySkew is subtracted from a token's expiry so it is refreshed before
// Keycloak starts rejecting it.
const tokenExpirySkew = 30 * time.Second

// KeycloakConfig configures the Keycloak admin client.
type KeycloakConfig struct {
	AuthServerURL string
	Realm         string
	ClientID      string
	ClientSecret  string
	Timeout       time.Duration
	RetryCount    int
}

// KeycloakClient implements Gateway against the Keycloak admin REST API using a
// client_credentials service account.
type KeycloakClient struct {
	http   *resty.Client
	cfg    KeycloakConfig
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewKeycloakClient creates a Keycloak admin client. No request is made until
// the first call.
func NewKeycloakClient(cfg KeycloakConfig, logger *slog.Logger) *KeycloakClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.AuthServerURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetPathParam("realm", cfg.Realm).
		SetHeader("Accept", "application/json")

	return &KeycloakClient{
		http:   client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type organizationDomain struct {
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

type organizationRepresentation struct {
	ID      string               `json:"id,omitempty"`
	Name    string               `json:"name"`
	Alias   string               `json:"alias"`
	Enabled bool                 `json:"enabled"`
	Domains []organizationDomain `json:"domains,omitempty"`
}

type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	ID            string                     `json:"id,omitempty"`
	Email         string                     `json:"email"`
	Username      string                     `json:"username"`
	FirstName     string                     `json:"firstName"`
	LastName      string                     `json:"lastName"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Credentials   []credentialRepresentation `json:"credentials,omitempty"`
}

// CreateOrganization creates an organization. The alias doubles as the
// organization's unverified domain.
func (c *KeycloakClient) CreateOrganization(ctx context.Context, name, alias string) (*Organization, error) {
	body := organizationRepresentation{
		Name:    name,
		Alias:   alias,
		Enabled: true,
		Domains: []organizationDomain{{Name: alias, Verified: false}},
	}

	resp, err := c.do(ctx, "create organization", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).Post("/admin/realms/{realm}/organizations")
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case http.StatusCreated:
	case http.StatusConflict:
		return nil, ErrOrganizationExists
	default:
		return nil, apiError("create organization", resp)
	}

	id := idFromLocation(resp)
	if id == "" {
		return nil, fmt.Errorf("identity provider create organization: missing Location header")
	}

	c.logger.Info("created keycloak organization", "org_id", id, "alias", alias)
	return &Organization{ID: id, Name: name, Alias: alias}, nil
}

// DeleteOrganization deletes an organization. A missing organization is not an error.
func (c *KeycloakClient) DeleteOrganization(ctx context.Context, orgID string) error {
	resp, err := c.do(ctx, "delete organization", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", orgID).Delete("/admin/realms/{realm}/organizations/{id}")
	})
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return apiError("delete organization", resp)
	}

	c.logger.Info("deleted keycloak organization", "org_id", orgID)
	return nil
}

// FindUserByEmail looks up a user by exact email. It returns ErrUserNotFound
// when there is no match.
func (c *KeycloakClient) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var users []userRepresentation
	resp, err := c.do(ctx, "find user", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetQueryParams(map[string]string{"email": email, "exact": "true"}).
			SetResult(&users).
			Get("/admin/realms/{realm}/users")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, apiError("find user", resp)
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}

	u := users[0]
	return &User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}, nil
}

// CreateUser creates an enabled user with a permanent password. The email is
// also used as the username.
func (c *KeycloakClient) CreateUser(ctx context.Context, email, password, fullName string) (*User, error) {
	firstName, lastName := domain.SplitFullName(fullName)
	body := userRepresentation{
		Email:         email,
		Username:      email,
		FirstName:     firstName,
		LastName:      lastName,
		Enabled:       true,
		EmailVerified: true,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: password, Temporary: false},
		},
	}

	resp, err := c.do(ctx, "create user", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).Post("/admin/realms/{realm}/users")
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case http.StatusCreated:
	case http.StatusConflict:
		return nil, ErrUserExists
	default:
		return nil, apiError("create user", resp)
	}

	id := idFromLocation(resp)
	if id == "" {
		return nil, fmt.Errorf("identity provider create user: missing Location header")
	}

	c.logger.Info("created keycloak user", "user_id", id)
	return &User{
		ID:        id,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Username:  email,
	}, nil
}

// DeleteUser deletes a user. A missing user is not an error.
func (c *KeycloakClient) DeleteUser(ctx context.Context, userID string) error {
	resp, err := c.do(ctx, "delete user", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", userID).Delete("/admin/realms/{realm}/users/{id}")
	})
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return apiError("delete user", resp)
	}

	c.logger.Info("deleted keycloak user", "user_id", userID)
	return nil
}

// AddUserToOrganization makes the user a member of the organization. Adding an
// existing member succeeds.
func (c *KeycloakClient) AddUserToOrganization(ctx context.Context, orgID, userID string) error {
	payload, err := json.Marshal(userID)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, "add organization member", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetPathParam("id", orgID).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post("/admin/realms/{realm}/organizations/{id}/members")
	})
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusConflict {
		return nil
	}
	if resp.IsError() {
		return apiError("add organization member", resp)
	}

	c.logger.Info("added user to keycloak organization", "org_id", orgID, "user_id", userID)
	return nil
}

// do sends an authenticated request. A 401 drops the cached token and the
// request is sent once more with a fresh one.
func (c *KeycloakClient) do(ctx context.Context, op string, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := send(c.http.R().SetContext(ctx).SetAuthToken(token))
		if err != nil {
			return nil, fmt.Errorf("identity provider %s: %w", op, err)
		}
		if resp.StatusCode() != http.StatusUnauthorized || attempt > 0 {
			return resp, nil
		}

		c.logger.Warn("keycloak token rejected, re-authenticating", "op", op)
		c.invalidateToken(token)
	}
}

func (c *KeycloakClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	var tok tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
		}).
		SetResult(&tok).
		Post("/realms/{realm}/protocol/openid-connect/token")
	if err != nil {
		return "", fmt.Errorf("identity provider authenticate: %w", err)
	}
	if resp.IsError() || tok.AccessToken == "" {
		return "", apiError("authenticate", resp)
	}

	c.token = tok.AccessToken
	c.expiresAt = c.tokenExpiry(tok)
	return c.token, nil
}

// tokenExpiry prefers the exp claim of the access token and falls back to
// expires_in for opaque tokens.
func (c *KeycloakClient) tokenExpiry(tok tokenResponse) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time.Add(-tokenExpirySkew)
	}
	return c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySkew)
}

func (c *KeycloakClient) invalidateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

func idFromLocation(resp *resty.Response) string {
	loc := resp.Header().Get("Location")
	if loc == "" {
		return ""
	}
	return path.Base(strings.TrimRight(loc, "/"))
}

func apiError(op string, resp *resty.Response) error {
	return &APIError{Op: op, StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
}
