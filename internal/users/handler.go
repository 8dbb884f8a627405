package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/budgetblitz/budgetblitz/internal/platform/httpx"
	"github.com/budgetblitz/budgetblitz/internal/rbac"
	"github.com/budgetblitz/budgetblitz/internal/shared"
)

// Handler exposes the current user's profile endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validate, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuthenticated)
	r.Use(h.rbac.RequireAuthority(shared.AuthorityUser))

	// Deactivated accounts can only reactivate themselves.
	r.Patch("/reactivate-me", h.reactivate)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireEnabled)
		r.Get("/me", h.getProfile)
		r.Patch("/me", h.updateProfile)
		r.Delete("/me", h.deleteAccount)
		r.Patch("/change-password", h.changePassword)
		r.Patch("/deactivate-me", h.deactivate)
	})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	profile, err := h.service.GetProfile(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	profile, err := h.service.UpdateProfile(r.Context(), principal.UserID, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), principal.UserID, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.stateChange(w, r, h.service.Deactivate)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	h.stateChange(w, r, h.service.Reactivate)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	h.stateChange(w, r, h.service.Delete)
}

func (h *Handler) stateChange(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID int64) error) {
	principal := shared.PrincipalFromContext(r.Context())
	if err := op(r.Context(), principal.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondValidation(w, httpx.FieldErrors(err))
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondValidation(w, httpx.FieldErrors(err))
		return false
	}
	return true
}
