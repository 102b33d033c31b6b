package security

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"taskweb/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	claimUserID  = "user_id"
	claimRole    = "role"
	claimTokenID = "jti"
	claimExpiry  = "exp"
)

// Claims is the decoded subset of a session token this service relies on.
type Claims struct {
	UserID    int64
	Role      model.Role
	TokenID   string
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies HS256 session tokens.
type TokenIssuer struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		auth: jwtauth.New("HS256", secret, nil),
		ttl:  ttl,
	}
}

// JWTAuth exposes the underlying verifier for jwtauth.Verifier.
func (i *TokenIssuer) JWTAuth() *jwtauth.JWTAuth {
	return i.auth
}

func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue mints a token for user carrying its id, effective role and a fresh
// token id.
func (i *TokenIssuer) Issue(user *model.User) (string, Claims, error) {
	if user == nil {
		return "", Claims{}, errors.New("cannot issue a token without a user")
	}

	c := Claims{
		UserID:    user.ID,
		Role:      user.EffectiveRole(),
		TokenID:   uuid.NewString(),
		ExpiresAt: time.Now().Add(i.ttl).Truncate(time.Second),
	}
	claims := jwt.MapClaims{
		claimUserID:  strconv.FormatInt(c.UserID, 10),
		claimRole:    string(c.Role),
		claimTokenID: c.TokenID,
	}
	jwtauth.SetIssuedNow(claims)
	claims[claimExpiry] = c.ExpiresAt.Unix()

	_, tokenString, err := i.auth.Encode(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, c, nil
}

// Parse verifies the signature and expiry of tokenString and decodes its claims.
func (i *TokenIssuer) Parse(tokenString string) (Claims, error) {
	token, err := jwtauth.VerifyToken(i.auth, tokenString)
	if err != nil {
		return Claims{}, err
	}
	claims, err := token.AsMap(context.Background())
	if err != nil {
		return Claims{}, err
	}
	return ClaimsFromMap(claims)
}

// ClaimsFromMap decodes the claims map produced by jwtauth.FromContext.
func ClaimsFromMap(claims map[string]interface{}) (Claims, error) {
	rawID, ok := claims[claimUserID].(string)
	if !ok {
		return Claims{}, errors.New("user_id claim is missing or not a string")
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		return Claims{}, fmt.Errorf("user_id claim %q is not a valid id", rawID)
	}

	role, ok := claims[claimRole].(string)
	if !ok {
		return Claims{}, errors.New("role claim is missing or not a string")
	}

	tokenID, ok := claims[claimTokenID].(string)
	if !ok || tokenID == "" {
		return Claims{}, errors.New("jti claim is missing")
	}

	var expiresAt time.Time
	switch exp := claims[claimExpiry].(type) {
	case time.Time:
		expiresAt = exp
	case float64:
		expiresAt = time.Unix(int64(exp), 0)
	case int64:
		expiresAt = time.Unix(exp, 0)
	default:
		return Claims{}, errors.New("exp claim is missing")
	}

	return Claims{
		UserID:    userID,
		Role:      model.Role(role),
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}, nil
}
