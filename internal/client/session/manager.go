// Package session owns the client's login state: the current user and the
// token issued for them, kept in memory and in a durable store.
//
// Every transition writes the store before memory is updated. A login in
// flight is superseded by a newer Login, Commit or Clear; its eventual result
// is discarded and reported as client.ErrLoginAborted.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"taskweb/internal/client"
	"taskweb/internal/client/store"
	"taskweb/internal/domain/model"
)

const (
	tokenKey = "token"
	userKey  = "user"
)

type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Authenticator verifies credentials and issues a token. It returns
// client.ErrInvalidCredentials for a rejected login.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, *model.User, error)
}

type Manager struct {
	store  store.Store
	auth   Authenticator
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	token       string
	user        *model.User
	epoch       uint64
	cancelLogin context.CancelFunc
}

func NewManager(st store.Store, auth Authenticator, logger *slog.Logger) *Manager {
	return &Manager{
		store:  st,
		auth:   auth,
		logger: logger.With("component", "session"),
	}
}

// LoadPersisted restores the session saved by a previous process. A missing
// session is not an error. Unreadable or inconsistent data leaves the manager
// Unauthenticated and is reported as a *client.StorageError. A login in
// flight is superseded.
func (m *Manager) LoadPersisted(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.supersedeLoginLocked()
	m.resetLocked()

	token, hasToken, err := m.store.Get(ctx, tokenKey)
	if err != nil {
		return &client.StorageError{Op: "load", Err: err}
	}
	rawUser, hasUser, err := m.store.Get(ctx, userKey)
	if err != nil {
		return &client.StorageError{Op: "load", Err: err}
	}

	switch {
	case !hasToken && !hasUser:
		return nil
	case hasToken != hasUser:
		return &client.StorageError{Op: "load", Err: errors.New("token and user are not stored together")}
	}

	var user model.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return &client.StorageError{Op: "load", Err: fmt.Errorf("malformed user: %w", err)}
	}
	if token == "" || user.ID <= 0 {
		return &client.StorageError{Op: "load", Err: errors.New("stored session is incomplete")}
	}

	m.state = Authenticated
	m.token = token
	m.user = &user
	return nil
}

// Commit stores token and user as one write and then makes them current.
// On a storage failure the previous session is kept.
func (m *Manager) Commit(ctx context.Context, token string, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.supersedeLoginLocked()
	return m.commitLocked(ctx, token, user)
}

func (m *Manager) commitLocked(ctx context.Context, token string, user *model.User) error {
	if token == "" || user == nil {
		return errors.New("session: token and user are both required")
	}

	rawUser, err := json.Marshal(user)
	if err != nil {
		return &client.StorageError{Op: "commit", Err: err}
	}
	if err := m.store.Set(ctx, map[string]string{tokenKey: token, userKey: string(rawUser)}); err != nil {
		return &client.StorageError{Op: "commit", Err: err}
	}

	u := *user
	m.state = Authenticated
	m.token = token
	m.user = &u
	return nil
}

// Clear ends the session. It is idempotent. Memory is cleared even when the
// store cannot be updated; the failure is returned as a *client.StorageError.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.supersedeLoginLocked()

	err := m.store.Remove(ctx, tokenKey, userKey)
	m.resetLocked()
	if err != nil {
		return &client.StorageError{Op: "clear", Err: err}
	}
	return nil
}

// Login verifies the credentials and commits the resulting session. A
// rejected login leaves any previous session in place.
func (m *Manager) Login(ctx context.Context, username, password string) (*model.User, error) {
	m.mu.Lock()
	m.supersedeLoginLocked()
	epoch := m.epoch
	loginCtx, cancel := context.WithCancel(ctx)
	m.cancelLogin = cancel
	m.state = Authenticating
	m.mu.Unlock()
	defer cancel()

	token, user, err := m.auth.Login(loginCtx, username, password)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		m.logger.Debug("discarding superseded login", slog.String("username", username))
		return nil, client.ErrLoginAborted
	}
	m.cancelLogin = nil

	if err != nil {
		m.restoreStateLocked()
		return nil, err
	}
	if err := m.commitLocked(ctx, token, user); err != nil {
		m.restoreStateLocked()
		return nil, err
	}

	u := *m.user
	return &u, nil
}

// Expire clears the session when err signals that the server no longer
// accepts it. It returns err unchanged so callers can write
// return m.Expire(ctx, err).
func (m *Manager) Expire(ctx context.Context, err error) error {
	if !errors.Is(err, client.ErrSessionExpired) {
		return err
	}
	if clearErr := m.Clear(ctx); clearErr != nil {
		m.logger.Error("failed to clear expired session", slog.Any("error", clearErr))
	}
	return err
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// CurrentUser returns a copy of the session user, or nil.
func (m *Manager) CurrentUser() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) IsAdmin() bool {
	return m.hasRole(model.RoleAdministrator)
}

func (m *Manager) IsSupervisor() bool {
	return m.hasRole(model.RoleSupervisor)
}

func (m *Manager) IsUser() bool {
	return m.hasRole(model.RoleUser)
}

func (m *Manager) hasRole(role model.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil && m.user.EffectiveRole() == role
}

// supersedeLoginLocked cancels any login in flight and invalidates its result.
// The state no longer reports Authenticating once it returns.
func (m *Manager) supersedeLoginLocked() {
	if m.cancelLogin != nil {
		m.cancelLogin()
		m.cancelLogin = nil
		m.restoreStateLocked()
	}
	m.epoch++
}

func (m *Manager) restoreStateLocked() {
	if m.user != nil {
		m.state = Authenticated
	} else {
		m.state = Unauthenticated
	}
}

func (m *Manager) resetLocked() {
	m.state = Unauthenticated
	m.token = ""
	m.user = nil
}
