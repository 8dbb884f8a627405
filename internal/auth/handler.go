package auth

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/budgetblitz/budgetblitz/internal/platform/httpx"
	"github.com/budgetblitz/budgetblitz/internal/shared"
	"github.com/budgetblitz/budgetblitz/internal/token"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	attempts  *shared.AttemptLimiter
}

// NewHandler constructs a Handler instance. attempts may be nil.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, attempts *shared.AttemptLimiter) *Handler {
	return &Handler{logger: logger, service: service, validator: validate, attempts: attempts}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/activate-account", h.handleActivate)
	r.Post("/resend-activation-code", h.handleResendActivation)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/verify-reset-code", h.handleVerifyResetCode)
	r.Patch("/reset-password", h.handleResetPassword)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Register(r.Context(), req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, http.StatusCreated)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allow(w, r, "code") {
		return
	}
	if err := h.service.ActivateAccount(r.Context(), req.Code); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, http.StatusOK)
}

func (h *Handler) handleResendActivation(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ResendActivationCode(r.Context(), req.Email); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, http.StatusAccepted)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allow(w, r, "login") {
		return
	}
	pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.attempts.Reset(r.Context(), "login:"+clientIP(r)); err != nil {
		h.logger.Warn("reset login attempts", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, authResponse(pair))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, authResponse(pair))
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, http.StatusAccepted)
}

func (h *Handler) handleVerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allow(w, r, "code") {
		return
	}
	grant, err := h.service.VerifyResetCode(r.Context(), req.Code)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, ResetGrantResponse{ResetToken: grant})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.service.ResetPassword(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, authResponse(pair))
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

// allow spends one attempt from the per-IP budget of scope.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, scope string) bool {
	if err := h.attempts.Hit(r.Context(), scope+":"+clientIP(r)); err != nil {
		if !shared.IsCode(err, shared.CodeTooManyAttempts) {
			// Redis trouble must not lock users out.
			h.logger.Warn("attempt limiter unavailable", slog.Any("error", err))
			return true
		}
		httpx.RespondError(w, h.logger, err)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func authResponse(p token.Pair) AuthResponse {
	return AuthResponse{AccessToken: p.AccessToken, TokenType: TokenTypeBearer, RefreshToken: p.RefreshToken}
}
