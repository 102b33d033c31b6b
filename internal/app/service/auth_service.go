package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskweb/internal/common"
	"taskweb/internal/common/security"
	"taskweb/internal/domain/model"
	"taskweb/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var loginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "taskweb_login_attempts_total",
		Help: "Login attempts by outcome.",
	},
	[]string{"outcome"},
)

// ErrInvalidCredentials is deliberately the same for unknown users and wrong
// passwords.
var ErrInvalidCredentials = fmt.Errorf("invalid username or password: %w", common.ErrUnauthorized)

// TokenRevoker records logged-out tokens until they expire.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

type AuthService struct {
	userRepo repository.UserRepository
	issuer   *security.TokenIssuer
	revoker  TokenRevoker
	logger   *slog.Logger
}

func NewAuthService(userRepo repository.UserRepository, issuer *security.TokenIssuer, revoker TokenRevoker, logger *slog.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		issuer:   issuer,
		revoker:  revoker,
		logger:   logger.With("service", "auth"),
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		loginAttemptsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("username and password are required: %w", common.ErrBadRequest)
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			loginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		loginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		loginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if user.EffectiveRole() != user.Role {
		s.logger.Warn("user has an inconsistent role, granting User permissions",
			slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)), slog.Int("role_id", user.RoleID))
	}

	token, _, err := s.issuer.Issue(user)
	if err != nil {
		loginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	loginAttemptsTotal.WithLabelValues("success").Inc()

	user.HashedPassword = ""
	return &AuthResponse{User: user, Token: token}, nil
}

// Logout revokes the presented token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims security.Claims) error {
	if err := s.revoker.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", claims.TokenID), slog.Any("error", err))
		return fmt.Errorf("failed to revoke token: %w", common.ErrServiceUnavailable)
	}
	return nil
}

// BootstrapAdmin creates the first administrator when no user exists yet.
// It reports whether a user was created.
func (s *AuthService) BootstrapAdmin(ctx context.Context, username, password string, cost int) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	n, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	hash, err := security.HashPasswordWithCost(password, cost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Username:       username,
		HashedPassword: hash,
		Role:           model.RoleAdministrator,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create administrator: %w", err)
	}

	s.logger.Info("bootstrap administrator created", slog.String("username", username), slog.Int64("user_id", admin.ID))
	return true, nil
}
