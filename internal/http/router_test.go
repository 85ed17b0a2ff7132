package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-onboarding/internal/config"
	"github.com/tendant/simple-onboarding/internal/metrics"
	"github.com/tendant/simple-onboarding/pkg/auth"
	"github.com/tendant/simple-onboarding/pkg/domain"
	"github.com/tendant/simple-onboarding/pkg/idp"
	"github.com/tendant/simple-onboarding/pkg/onboarding"
	"github.com/tendant/simple-onboarding/pkg/repository"
)

type testServer struct {
	handler http.Handler
	gateway *idp.MemoryGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	gateway := idp.NewMemoryGateway()

	svc := onboarding.NewService(
		onboarding.Config{RootDomain: "crm.test", Logger: logger, Metrics: m},
		repository.NewMemoryAliasReservations(domain.AliasReservationTTL, nil),
		repository.NewMemoryTenants(),
		repository.NewMemoryUsers(),
		gateway,
		nil,
	)

	policy := auth.NewPasswordPolicy(config.PasswordPolicyConfig{MinLength: 8, RequireNumber: true})
	handler := NewRouter(RouterConfig{
		Logger:         logger,
		Registrar:      svc,
		Tenants:        svc,
		Validator:      auth.NewRegistrationValidator(policy, true, false),
		MetricsHandler: m.Handler(),
		SecurityHeaders: config.SecurityHeadersConfig{
			Enabled:            true,
			ContentTypeOptions: "nosniff",
		},
		Validation: config.ValidationConfig{MaxRequestBodySize: 4096},
	})
	return &testServer{handler: handler, gateway: gateway}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

const acmeBody = `{"email":"admin@acme.test","password":"Password123!","fullName":"Jane Doe","organizationName":"Acme Corp","organizationAlias":"acme"}`

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_RegisterThenLookup(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/v1/tenants/alias/acme/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":true`)

	rec = s.do(http.MethodPost, "/v1/auth/register", acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result onboarding.RegisterResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "https://acme.crm.test/login", result.LoginURL)

	rec = s.do(http.MethodGet, "/v1/tenants/"+result.TenantID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alias":"acme"`)
	assert.Contains(t, rec.Body.String(), `"ownerId"`)

	rec = s.do(http.MethodGet, "/v1/tenants/alias/acme/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":false`)

	rec = s.do(http.MethodPost, "/v1/auth/register", acmeBody)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `onboarding_registrations_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), `onboarding_registrations_total{outcome="conflict"} 1`)
}

func TestRouter_ProvisioningFailure(t *testing.T) {
	s := newTestServer(t)
	s.gateway.FailOn(idp.OpAddUserToOrganization, assert.AnError)

	rec := s.do(http.MethodPost, "/v1/auth/register", acmeBody)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "all partial changes have been rolled back")
	assert.Zero(t, s.gateway.OrganizationCount())

	rec = s.do(http.MethodGet, "/v1/tenants/alias/acme/availability", "")
	assert.Contains(t, rec.Body.String(), `"available":true`)
}

func TestRouter_BodyTooLarge(t *testing.T) {
	s := newTestServer(t)

	body := `{"email":"` + strings.Repeat("a", 5000) + `@acme.test"}`
	rec := s.do(http.MethodPost, "/v1/auth/register", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
