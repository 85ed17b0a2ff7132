package tenants

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-onboarding/internal/httputil"
	"github.com/tendant/simple-onboarding/pkg/auth"
	"github.com/tendant/simple-onboarding/pkg/domain"
)

// Finder looks up tenants.
type Finder interface {
	FindTenantByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	FindTenantByAlias(ctx context.Context, alias string) (*domain.Tenant, error)
	CheckAliasAvailability(ctx context.Context, alias string) (bool, error)
}

// Handler handles tenant lookup endpoints.
type Handler struct {
	logger *slog.Logger
	finder Finder
}

// NewHandler creates a new tenants handler.
func NewHandler(logger *slog.Logger, finder Finder) *Handler {
	return &Handler{logger: logger, finder: finder}
}

// TenantResponse is the public view of a tenant.
type TenantResponse struct {
	ID                    uuid.UUID  `json:"id"`
	Alias                 string     `json:"alias"`
	Name                  string     `json:"name"`
	IdentityProviderOrgID string     `json:"identityProviderOrgId"`
	OwnerID               *uuid.UUID `json:"ownerId,omitempty"`
	SubscriptionPlan      string     `json:"subscriptionPlan"`
	Status                string     `json:"status"`
	CreatedAt             time.Time  `json:"createdAt"`
}

// AvailabilityResponse answers an alias availability check.
type AvailabilityResponse struct {
	Alias     string `json:"alias"`
	Available bool   `json:"available"`
}

func toResponse(t *domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:                    t.ID,
		Alias:                 t.Alias,
		Name:                  t.Name,
		IdentityProviderOrgID: t.IdentityProviderOrgID,
		OwnerID:               t.OwnerID,
		SubscriptionPlan:      string(t.SubscriptionPlan),
		Status:                string(t.Status),
		CreatedAt:             t.CreatedAt,
	}
}

// GetByID returns a tenant.
// GET /v1/tenants/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	tenant, err := h.finder.FindTenantByID(r.Context(), id)
	h.writeTenant(w, tenant, err)
}

// GetByAlias returns a tenant by alias.
// GET /v1/tenants/alias/{alias}
func (h *Handler) GetByAlias(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if err := auth.ValidateAlias(alias); err != nil {
		httputil.Error(w, http.StatusNotFound, "tenant not found")
		return
	}

	tenant, err := h.finder.FindTenantByAlias(r.Context(), alias)
	h.writeTenant(w, tenant, err)
}

// Availability reports whether an alias can be registered.
// GET /v1/tenants/alias/{alias}/availability
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if err := auth.ValidateAlias(alias); err != nil {
		httputil.FieldError(w, http.StatusBadRequest, "organizationAlias", "invalid organization alias")
		return
	}

	available, err := h.finder.CheckAliasAvailability(r.Context(), alias)
	if err != nil {
		h.logger.Error("failed to check alias availability", "alias", alias, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to check alias availability")
		return
	}

	httputil.JSON(w, http.StatusOK, AvailabilityResponse{Alias: alias, Available: available})
}

func (h *Handler) writeTenant(w http.ResponseWriter, tenant *domain.Tenant, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			httputil.Error(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error("failed to load tenant", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to load tenant")
		return
	}
	httputil.JSON(w, http.StatusOK, toResponse(tenant))
}

// Routes mounts the tenant lookup routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/tenants/{id}", h.GetByID)
	r.Get("/v1/tenants/alias/{alias}", h.GetByAlias)
	r.Get("/v1/tenants/alias/{alias}/availability", h.Availability)
}
