package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"taskweb/internal/client"
	"taskweb/internal/common/security"
	"taskweb/internal/domain/model"
)

// fakeAPI serves the parts of the taskweb API the CLI tests touch.
type fakeAPI struct {
	expired     atomic.Bool
	statusCalls atomic.Int32
	deleteCalls atomic.Int32
	logoutCalls atomic.Int32
}

var fakeUsers = map[string]model.User{
	"admin": {ID: 1, Username: "admin", Role: model.RoleAdministrator, RoleID: 1},
	"alice": {ID: 7, Username: "alice", Role: model.RoleUser, RoleID: 3},
	"carol": {ID: 9, Username: "carol", Role: model.RoleUser, RoleID: 3},
}

func (f *fakeAPI) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	caller := func(r *http.Request) (model.User, bool) {
		if f.expired.Load() {
			return model.User{}, false
		}
		name := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer tok-")
		u, ok := fakeUsers[name]
		return u, ok
	}
	authed := func(next func(http.ResponseWriter, *http.Request, model.User)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			u, ok := caller(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next(w, r, u)
		}
	}
	assignee := int64(7)
	task11 := model.Task{ID: 11, Title: "Ship it", Status: model.StatusPending, CreatorID: 2, AssignedToID: &assignee}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		u, ok := fakeUsers[body["username"]]
		if !ok || body["password"] != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": "tok-" + u.Username, "user": u})
	})
	mux.HandleFunc("POST /api/auth/logout", authed(func(w http.ResponseWriter, _ *http.Request, _ model.User) {
		f.logoutCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /api/auth/me", authed(func(w http.ResponseWriter, _ *http.Request, u model.User) {
		writeJSON(w, http.StatusOK, map[string]any{"user": u, "permissions": map[string]bool{"createTasks": u.ID == 1}})
	}))
	mux.HandleFunc("GET /api/tasks/11", authed(func(w http.ResponseWriter, _ *http.Request, _ model.User) {
		writeJSON(w, http.StatusOK, task11)
	}))
	mux.HandleFunc("PATCH /api/tasks/11/status", authed(func(w http.ResponseWriter, r *http.Request, _ model.User) {
		f.statusCalls.Add(1)
		var body map[string]model.TaskStatus
		_ = json.NewDecoder(r.Body).Decode(&body)
		updated := task11
		updated.Status = body["status"]
		writeJSON(w, http.StatusOK, updated)
	}))
	mux.HandleFunc("DELETE /api/tasks/11", authed(func(w http.ResponseWriter, _ *http.Request, _ model.User) {
		f.deleteCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /api/tasks", authed(func(w http.ResponseWriter, _ *http.Request, _ model.User) {
		writeJSON(w, http.StatusOK, []model.Task{task11})
	}))
	return mux
}

type cliEnv struct {
	t            *testing.T
	api          *fakeAPI
	serverURL    string
	dir          string
	sessionFile  string
	passwordFile string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	passwordFile := filepath.Join(dir, "password")
	if err := os.WriteFile(passwordFile, []byte("pw\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return &cliEnv{
		t:            t,
		api:          api,
		serverURL:    srv.URL,
		dir:          dir,
		sessionFile:  filepath.Join(dir, "state", "session.json"),
		passwordFile: passwordFile,
	}
}

// run executes one taskctl invocation, as a separate process would.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{
		"--config", filepath.Join(e.dir, "config.yaml"),
		"--server", e.serverURL,
		"--session-file", e.sessionFile,
	}, args...)
	err := run(context.Background(), full, func(string) string { return "" }, &stdout, &stderr)
	return stdout.String(), err
}

func (e *cliEnv) login(username string) {
	e.t.Helper()
	if _, err := e.run("login", username, "--password-file", e.passwordFile); err != nil {
		e.t.Fatalf("login %s: %v", username, err)
	}
}

func TestCLI_LoginPersistsSession(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("login", "alice", "--password-file", env.passwordFile)
	if err != nil {
		t.Fatalf("login error: %v", err)
	}
	if !strings.Contains(out, "Logged in as alice (User)") {
		t.Errorf("login output = %q", out)
	}

	info, err := os.Stat(env.sessionFile)
	if err != nil {
		t.Fatalf("session file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("session file mode = %v", info.Mode().Perm())
	}

	out, err = env.run("whoami")
	if err != nil {
		t.Fatalf("whoami error: %v", err)
	}
	if !strings.Contains(out, "alice (id 7, User)") {
		t.Errorf("whoami output = %q", out)
	}
}

func TestCLI_LoginRejected(t *testing.T) {
	env := newCLIEnv(t)
	badPassword := filepath.Join(env.dir, "bad")
	if err := os.WriteFile(badPassword, []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := env.run("login", "alice", "--password-file", badPassword)
	if !errors.Is(err, client.ErrInvalidCredentials) {
		t.Fatalf("login error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := os.Stat(env.sessionFile); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("session file after rejected login: %v", err)
	}
}

func TestCLI_StatusGoesThroughGate(t *testing.T) {
	env := newCLIEnv(t)

	env.login("carol")
	if _, err := env.run("tasks", "status", "11", "done"); !errors.Is(err, client.ErrForbidden) {
		t.Fatalf("carol status change error = %v, want ErrForbidden", err)
	}
	if n := env.api.statusCalls.Load(); n != 0 {
		t.Fatalf("status endpoint called %d times for a denied change", n)
	}

	env.login("alice")
	if _, err := env.run("tasks", "status", "11", "pending"); !errors.Is(err, client.ErrInvalidTransition) {
		t.Fatalf("same status error = %v, want ErrInvalidTransition", err)
	}
	out, err := env.run("tasks", "status", "11", "in-progress")
	if err != nil {
		t.Fatalf("alice status change error: %v", err)
	}
	if !strings.Contains(out, "Task 11 is now in_progress") {
		t.Errorf("output = %q", out)
	}
	if n := env.api.statusCalls.Load(); n != 1 {
		t.Errorf("status endpoint called %d times, want 1", n)
	}
}

func TestCLI_LocalPermissionChecks(t *testing.T) {
	env := newCLIEnv(t)
	env.login("alice")

	tests := []struct {
		name string
		args []string
	}{
		{"delete", []string{"tasks", "delete", "11"}},
		{"create", []string{"tasks", "create", "--title", "x"}},
		{"assign", []string{"tasks", "assign", "11", "9"}},
		{"users", []string{"users"}},
		{"create user", []string{"users", "create", "bob", "--password-file", env.passwordFile}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.run(tt.args...); !errors.Is(err, client.ErrForbidden) {
				t.Errorf("error = %v, want ErrForbidden", err)
			}
		})
	}
	if n := env.api.deleteCalls.Load(); n != 0 {
		t.Errorf("delete endpoint called %d times", n)
	}

	env.login("admin")
	if _, err := env.run("tasks", "delete", "11"); err != nil {
		t.Fatalf("admin delete error: %v", err)
	}
	if n := env.api.deleteCalls.Load(); n != 1 {
		t.Errorf("delete endpoint called %d times, want 1", n)
	}
}

func TestCLI_ExpiredSessionIsCleared(t *testing.T) {
	env := newCLIEnv(t)
	env.login("alice")
	env.api.expired.Store(true)

	if _, err := env.run("tasks", "list"); !errors.Is(err, client.ErrSessionExpired) {
		t.Fatalf("list error = %v, want ErrSessionExpired", err)
	}
	if _, err := os.Stat(env.sessionFile); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("session file should be removed after a 401, stat error = %v", err)
	}
	if _, err := env.run("tasks", "list"); !errors.Is(err, client.ErrNotAuthenticated) {
		t.Errorf("list after expiry error = %v, want ErrNotAuthenticated", err)
	}
}

func TestCLI_Logout(t *testing.T) {
	env := newCLIEnv(t)
	env.login("alice")

	out, err := env.run("logout")
	if err != nil {
		t.Fatalf("logout error: %v", err)
	}
	if !strings.Contains(out, "Logged out") || env.api.logoutCalls.Load() != 1 {
		t.Errorf("logout output = %q, server calls = %d", out, env.api.logoutCalls.Load())
	}
	if _, err := os.Stat(env.sessionFile); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("session file after logout: %v", err)
	}

	out, err = env.run("logout")
	if err != nil || !strings.Contains(out, "Not logged in") {
		t.Errorf("second logout = %q, %v", out, err)
	}
}

func TestCLI_HashPassword(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("hash-password", "--cost", "4", "--password-file", env.passwordFile)
	if err != nil {
		t.Fatalf("hash-password error: %v", err)
	}
	if !security.CheckPasswordHash("pw", strings.TrimSpace(out)) {
		t.Errorf("hash %q does not match the password", out)
	}

	if _, err := env.run("hash-password", "--cost", "99", "--password-file", env.passwordFile); !errors.Is(err, errUsage) {
		t.Errorf("bad cost error = %v", err)
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	env := newCLIEnv(t)

	for _, args := range [][]string{
		{},
		{"frobnicate"},
		{"tasks", "show", "abc"},
		{"tasks", "status", "11", "archived"},
	} {
		if _, err := env.run(args...); !errors.Is(err, errUsage) {
			t.Errorf("run(%v) error = %v, want usage error", args, err)
		}
	}
}
