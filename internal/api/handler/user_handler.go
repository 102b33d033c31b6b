package handler

import (
	"context"
	"net/http"

	"taskweb/internal/api/middleware"
	"taskweb/internal/app/service"
	"taskweb/internal/common"
	"taskweb/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type UserAdmin interface {
	Create(ctx context.Context, actor *model.User, req service.CreateUserRequest) (*model.User, error)
}

// UserUseCase is everything the API needs from the user service.
type UserUseCase interface {
	UserDirectory
	UserAdmin
}

type UserHandler struct {
	userService UserAdmin
}

func NewUserHandler(userService UserAdmin) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.AdminOnly).Post("/", h.createUser)
}

func (h *UserHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	user, err := h.userService.Create(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, user)
}
