package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"taskweb/internal/common"
	"taskweb/internal/common/security"
	"taskweb/internal/domain/authz"
	"taskweb/internal/domain/model"
	"taskweb/internal/domain/repository"
)

const (
	maxUsernameLen  = 64
	minPasswordLen  = 8
	userSearchLimit = 20
)

type UserService struct {
	userRepo   repository.UserRepository
	bcryptCost int
}

func NewUserService(userRepo repository.UserRepository, bcryptCost int) *UserService {
	return &UserService{userRepo: userRepo, bcryptCost: bcryptCost}
}

type CreateUserRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

func (s *UserService) Create(ctx context.Context, actor *model.User, req CreateUserRequest) (*model.User, error) {
	if !authz.CanManageUsers(actor) {
		return nil, fmt.Errorf("only administrators can create users: %w", common.ErrForbidden)
	}

	username := strings.TrimSpace(req.Username)
	switch {
	case username == "":
		return nil, fmt.Errorf("username is required: %w", common.ErrValidation)
	case utf8.RuneCountInString(username) > maxUsernameLen:
		return nil, fmt.Errorf("username exceeds %d characters: %w", maxUsernameLen, common.ErrValidation)
	case len(req.Password) < minPasswordLen:
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, common.ErrValidation)
	case !req.Role.Valid():
		return nil, fmt.Errorf("role must be Administrator, Supervisor or User: %w", common.ErrValidation)
	}

	hash, err := security.HashPasswordWithCost(req.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%v: %w", err, common.ErrValidation)
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:       username,
		HashedPassword: hash,
		Role:           req.Role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.HashedPassword = ""
	return user, nil
}

// ListAssignable returns every user a task can be assigned to.
func (s *UserService) ListAssignable(ctx context.Context, actor *model.User) ([]model.User, error) {
	if !authz.CanAssignTask(actor) {
		return nil, fmt.Errorf("not allowed to list users: %w", common.ErrForbidden)
	}
	return s.userRepo.List(ctx)
}

func (s *UserService) Search(ctx context.Context, actor *model.User, query string) ([]model.User, error) {
	if !authz.CanAssignTask(actor) {
		return nil, fmt.Errorf("not allowed to search users: %w", common.ErrForbidden)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", common.ErrBadRequest)
	}
	return s.userRepo.Search(ctx, query, userSearchLimit)
}
