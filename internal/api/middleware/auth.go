package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"taskweb/internal/common"
	"taskweb/internal/common/security"
	"taskweb/internal/domain/authz"
	"taskweb/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	userCtxKey   contextKey = "user"
	claimsCtxKey contextKey = "claims"
)

// UserLookup loads the account a token was issued for.
type UserLookup interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// RevocationChecker reports whether a token id was logged out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Auth resolves the verified token placed in the context by jwtauth.Verifier
// into the current user.
type Auth struct {
	users       UserLookup
	revocations RevocationChecker
	logger      *slog.Logger
}

func NewAuth(users UserLookup, revocations RevocationChecker, logger *slog.Logger) *Auth {
	return &Auth{users: users, revocations: revocations, logger: logger}
}

func (a *Auth) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, rawClaims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			if err == nil || errors.Is(err, jwtauth.ErrNoTokenFound) {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			} else {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			}
			return
		}

		claims, err := security.ClaimsFromMap(rawClaims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims")
			return
		}

		revoked, err := a.revocations.IsRevoked(r.Context(), claims.TokenID)
		if err != nil {
			a.logger.Error("failed to check token revocation", slog.String("jti", claims.TokenID), slog.Any("error", err))
			common.RespondWithError(w, http.StatusServiceUnavailable, "Session store unavailable")
			return
		}
		if revoked {
			common.RespondWithError(w, http.StatusUnauthorized, "Session has ended")
			return
		}

		user, err := a.users.FindByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				common.RespondWithError(w, http.StatusUnauthorized, "Account no longer exists")
				return
			}
			a.logger.Error("failed to load token user", slog.Int64("user_id", claims.UserID), slog.Any("error", err))
			common.RespondWithError(w, http.StatusInternalServerError, "An internal server error occurred")
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey, user)
		ctx = context.WithValue(ctx, claimsCtxKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly rejects callers that may not manage users.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authz.CanManageUsers(UserFromContext(r.Context())) {
			common.RespondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userCtxKey).(*model.User)
	return user
}

func ClaimsFromContext(ctx context.Context) (security.Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey).(security.Claims)
	return claims, ok
}

// WithUser stores user in ctx the way Authenticator does.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}
