package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskweb/internal/common"
	"taskweb/internal/common/security"
	"taskweb/internal/domain/model"

	"golang.org/x/crypto/bcrypt"
)

func newAuthFixture(t *testing.T) (*AuthService, *memUserRepo, *memRevoker, *security.TokenIssuer) {
	t.Helper()
	hash, err := security.HashPasswordWithCost("correct horse", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	users := newMemUserRepo(
		model.User{ID: 1, Username: "admin", HashedPassword: hash, Role: model.RoleAdministrator, RoleID: model.RoleIDAdministrator},
		model.User{ID: 5, Username: "odd", HashedPassword: hash, Role: "Root", RoleID: 1},
	)
	revoker := &memRevoker{}
	issuer := security.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	return NewAuthService(users, issuer, revoker, discardLogger()), users, revoker, issuer
}

func TestAuthService_Login(t *testing.T) {
	svc, _, _, issuer := newAuthFixture(t)
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginRequest{Username: " admin ", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if resp.User.ID != 1 || resp.User.HashedPassword != "" {
		t.Errorf("Login() user = %+v", resp.User)
	}
	claims, err := issuer.Parse(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.UserID != 1 || claims.Role != model.RoleAdministrator {
		t.Errorf("claims = %+v", claims)
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	svc, users, _, _ := newAuthFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     LoginRequest
		wantErr error
	}{
		{"empty username", LoginRequest{Password: "x"}, common.ErrBadRequest},
		{"empty password", LoginRequest{Username: "admin"}, common.ErrBadRequest},
		{"unknown user", LoginRequest{Username: "nobody", Password: "correct horse"}, ErrInvalidCredentials},
		{"wrong password", LoginRequest{Username: "admin", Password: "wrong"}, ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if !errors.Is(ErrInvalidCredentials, common.ErrUnauthorized) {
		t.Error("ErrInvalidCredentials should map to 401")
	}

	users.err = errBoom
	if _, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "correct horse"}); !errors.Is(err, errBoom) {
		t.Errorf("Login() with failing store error = %v", err)
	}
}

func TestAuthService_LoginWithUnknownRoleIssuesUserToken(t *testing.T) {
	svc, _, _, issuer := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), LoginRequest{Username: "odd", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	claims, _ := issuer.Parse(resp.Token)
	if claims.Role != model.RoleUser {
		t.Errorf("token role = %q, want User", claims.Role)
	}
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, revoker, _ := newAuthFixture(t)
	claims := security.Claims{UserID: 1, TokenID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}

	if err := svc.Logout(context.Background(), claims); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if _, ok := revoker.revoked["jti-1"]; !ok {
		t.Error("token should be revoked")
	}

	revoker.err = errBoom
	if err := svc.Logout(context.Background(), claims); !errors.Is(err, common.ErrServiceUnavailable) {
		t.Errorf("Logout() error = %v, want ErrServiceUnavailable", err)
	}
}

func TestAuthService_BootstrapAdmin(t *testing.T) {
	users := newMemUserRepo()
	svc := NewAuthService(users, security.NewTokenIssuer([]byte("0123456789abcdef"), time.Hour), &memRevoker{}, discardLogger())
	ctx := context.Background()

	created, err := svc.BootstrapAdmin(ctx, "root", "changeme", bcrypt.MinCost)
	if err != nil || !created {
		t.Fatalf("BootstrapAdmin() = %v, %v", created, err)
	}
	u, err := users.FindByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("bootstrap user missing: %v", err)
	}
	if u.Role != model.RoleAdministrator || !security.CheckPasswordHash("changeme", u.HashedPassword) {
		t.Errorf("bootstrap user = %+v", u)
	}

	created, err = svc.BootstrapAdmin(ctx, "root2", "changeme", bcrypt.MinCost)
	if err != nil || created {
		t.Errorf("second BootstrapAdmin() = %v, %v, want no-op", created, err)
	}

	created, err = svc.BootstrapAdmin(ctx, "", "", bcrypt.MinCost)
	if err != nil || created {
		t.Errorf("BootstrapAdmin() without credentials = %v, %v", created, err)
	}
}
