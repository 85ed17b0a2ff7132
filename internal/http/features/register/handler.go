package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-onboarding/internal/http/middleware"
	"github.com/tendant/simple-onboarding/internal/httputil"
	"github.com/tendant/simple-onboarding/pkg/auth"
	"github.com/tendant/simple-onboarding/pkg/onboarding"
)

// Registrar provisions tenants.
type Registrar interface {
	Register(ctx context.Context, req onboarding.RegisterRequest) (*onboarding.RegisterResult, error)
}

// Handler handles tenant registration.
type Handler struct {
	logger    *slog.Logger
	registrar Registrar
	validator *auth.RegistrationValidator
}

// NewHandler creates a new registration handler.
func NewHandler(logger *slog.Logger, registrar Registrar, validator *auth.RegistrationValidator) *Handler {
	return &Handler{
		logger:    logger,
		registrar: registrar,
		validator: validator,
	}
}

// Request is the registration payload.
type Request struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FullName         string `json:"fullName"`
	OrganizationName string `json:"organizationName"`
	Alias            string `json:"organizationAlias"`
}

// Register handles tenant registration.
// POST /v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if middleware.HandleMaxBytesError(w, err) {
			return
		}
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reg, err := h.validator.Validate(auth.Registration{
		Email:            req.Email,
		Password:         req.Password,
		FullName:         req.FullName,
		OrganizationName: req.OrganizationName,
		Alias:            req.Alias,
	})
	if err != nil {
		var verr *auth.ValidationError
		if errors.As(err, &verr) {
			httputil.FieldError(w, http.StatusBadRequest, verr.Field, verr.Detail)
			return
		}
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.registrar.Register(r.Context(), onboarding.RegisterRequest{
		Email:            reg.Email,
		Password:         reg.Password,
		FullName:         reg.FullName,
		OrganizationName: reg.OrganizationName,
		Alias:            reg.Alias,
	})
	if err != nil {
		var conflict *onboarding.ConflictError
		if errors.As(err, &conflict) {
			httputil.FieldError(w, http.StatusConflict, "organizationAlias", conflict.Error())
			return
		}
		var perr *onboarding.ProvisioningError
		if errors.As(err, &perr) {
			// Step and cause are logged by the service; clients get the fixed message.
			httputil.Error(w, http.StatusInternalServerError, perr.Error())
			return
		}
		h.logger.Error("registration failed", "alias", reg.Alias, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	httputil.JSON(w, http.StatusCreated, result)
}
