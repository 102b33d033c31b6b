package handler

import (
	"context"
	"net/http"

	"taskweb/internal/api/middleware"
	"taskweb/internal/app/service"
	"taskweb/internal/common"
	"taskweb/internal/common/security"
	"taskweb/internal/domain/authz"
	"taskweb/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type AuthUseCase interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResponse, error)
	Logout(ctx context.Context, claims security.Claims) error
}

type AuthHandler struct {
	authService AuthUseCase
}

func NewAuthHandler(authService AuthUseCase) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRoutes mounts the public login route.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.login)
}

// RegisterProtectedRoutes mounts the routes that need an authenticated user.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

type meResponse struct {
	User        *model.User       `json:"user"`
	Permissions authz.Permissions `json:"permissions"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}
	if err := h.authService.Logout(r.Context(), claims); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}
	common.RespondWithJSON(w, http.StatusOK, meResponse{User: user, Permissions: authz.PermissionsFor(user)})
}
