package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskweb/internal/api/middleware"
	"taskweb/internal/app/service"
	"taskweb/internal/common"
	"taskweb/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

// stubTasks records the last call and answers from its fields.
type stubTasks struct {
	task      *model.Task
	tasks     []model.Task
	err       error
	lastReq   service.ListTasksRequest
	lastID    int64
	status    model.TaskStatus
	assignee  *int64
	update    service.UpdateTaskRequest
	actorSeen *model.User
}

func (s *stubTasks) List(_ context.Context, actor *model.User, req service.ListTasksRequest) ([]model.Task, error) {
	s.actorSeen, s.lastReq = actor, req
	return s.tasks, s.err
}

func (s *stubTasks) Stats(_ context.Context, actor *model.User) (model.TaskStats, error) {
	s.actorSeen = actor
	return model.TaskStats{Total: 2, Pending: 1, Done: 1}, s.err
}

func (s *stubTasks) Get(_ context.Context, actor *model.User, id int64) (*model.Task, error) {
	s.actorSeen, s.lastID = actor, id
	return s.task, s.err
}

func (s *stubTasks) Create(_ context.Context, actor *model.User, req service.CreateTaskRequest) (*model.Task, error) {
	s.actorSeen = actor
	if s.err != nil {
		return nil, s.err
	}
	return &model.Task{ID: 1, Title: req.Title, Status: model.StatusPending}, nil
}

func (s *stubTasks) Update(_ context.Context, actor *model.User, id int64, req service.UpdateTaskRequest) (*model.Task, error) {
	s.actorSeen, s.lastID, s.update = actor, id, req
	return s.task, s.err
}

func (s *stubTasks) ChangeStatus(_ context.Context, actor *model.User, id int64, status model.TaskStatus) (*model.Task, error) {
	s.actorSeen, s.lastID, s.status = actor, id, status
	return s.task, s.err
}

func (s *stubTasks) Assign(_ context.Context, actor *model.User, id int64, assigneeID *int64) (*model.Task, error) {
	s.actorSeen, s.lastID, s.assignee = actor, id, assigneeID
	return s.task, s.err
}

func (s *stubTasks) Delete(_ context.Context, actor *model.User, id int64) error {
	s.actorSeen, s.lastID = actor, id
	return s.err
}

func (s *stubTasks) History(_ context.Context, actor *model.User, id int64) ([]model.TaskHistoryEntry, error) {
	s.actorSeen, s.lastID = actor, id
	return nil, s.err
}

type stubUsers struct {
	users []model.User
	err   error
	query string
}

func (s *stubUsers) ListAssignable(context.Context, *model.User) ([]model.User, error) {
	return s.users, s.err
}

func (s *stubUsers) Search(_ context.Context, _ *model.User, query string) ([]model.User, error) {
	s.query = query
	return s.users, s.err
}

var alice = &model.User{ID: 7, Username: "alice", Role: model.RoleUser, RoleID: model.RoleIDUser}

func newTaskRouter(tasks *stubTasks, users *stubUsers) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), alice)))
		})
	})
	r.Route("/api/tasks", NewTaskHandler(tasks, users).RegisterRoutes)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTaskHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"forbidden", fmt.Errorf("not allowed: %w", common.ErrForbidden), http.StatusForbidden, "not allowed"},
		{"not found", common.ErrNotFound, http.StatusNotFound, "not found"},
		{"invalid transition", fmt.Errorf("cannot move: %w", common.ErrInvalidTransition), http.StatusConflict, "cannot move"},
		{"validation", fmt.Errorf("title is required: %w", common.ErrValidation), http.StatusBadRequest, "title is required"},
		{"internal", fmt.Errorf("pq: connection refused"), http.StatusInternalServerError, common.ErrInternalServer.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTaskRouter(&stubTasks{err: tt.err}, &stubUsers{})
			rec := do(h, http.MethodPatch, "/api/tasks/11/status", `{"status":"done"}`)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp common.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(resp.Error, tt.body) {
				t.Errorf("error = %q, want it to contain %q", resp.Error, tt.body)
			}
			if strings.Contains(resp.Error, "pq:") {
				t.Errorf("internal detail leaked: %q", resp.Error)
			}
		})
	}
}

func TestTaskHandler_ChangeStatus(t *testing.T) {
	tasks := &stubTasks{task: &model.Task{ID: 11, Status: model.StatusDone}}
	rec := do(newTaskRouter(tasks, &stubUsers{}), http.MethodPatch, "/api/tasks/11/status", `{"status":"done"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if tasks.lastID != 11 || tasks.status != model.StatusDone || tasks.actorSeen != alice {
		t.Errorf("service saw id=%d status=%q actor=%v", tasks.lastID, tasks.status, tasks.actorSeen)
	}
}

func TestTaskHandler_BadInput(t *testing.T) {
	h := newTaskRouter(&stubTasks{}, &stubUsers{})

	tests := []struct {
		name, method, path, body string
	}{
		{"non numeric id", http.MethodGet, "/api/tasks/abc", ""},
		{"zero id", http.MethodGet, "/api/tasks/0", ""},
		{"unknown field", http.MethodPost, "/api/tasks", `{"title":"x","owner":1}`},
		{"empty body", http.MethodPatch, "/api/tasks/1/status", ""},
		{"trailing data", http.MethodPut, "/api/tasks/1", `{"title":"x"}{"title":"y"}`},
		{"bad limit", http.MethodGet, "/api/tasks?limit=ten", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(h, tt.method, tt.path, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTaskHandler_List(t *testing.T) {
	tasks := &stubTasks{}
	rec := do(newTaskRouter(tasks, &stubUsers{}), http.MethodGet, "/api/tasks?status=pending&search=report&limit=5&offset=10", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list body = %s, want []", rec.Body.String())
	}
	req := tasks.lastReq
	if req.Status == nil || *req.Status != model.StatusPending || req.Search != "report" || req.Limit != 5 || req.Offset != 10 {
		t.Errorf("request = %+v", req)
	}
}

func TestTaskHandler_CreateAndDelete(t *testing.T) {
	tasks := &stubTasks{}
	h := newTaskRouter(tasks, &stubUsers{})

	rec := do(h, http.MethodPost, "/api/tasks", `{"title":"Quarterly review","assignedToId":7}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodDelete, "/api/tasks/3", "")
	if rec.Code != http.StatusNoContent || tasks.lastID != 3 {
		t.Errorf("delete status = %d, id = %d", rec.Code, tasks.lastID)
	}
}

func TestTaskHandler_AssignAndUpdate(t *testing.T) {
	tasks := &stubTasks{task: &model.Task{ID: 10}}
	h := newTaskRouter(tasks, &stubUsers{})

	if rec := do(h, http.MethodPatch, "/api/tasks/10/assignee", `{"assignedToId":null}`); rec.Code != http.StatusOK {
		t.Fatalf("unassign status = %d", rec.Code)
	}
	if tasks.assignee != nil {
		t.Errorf("assignee = %v, want nil", *tasks.assignee)
	}

	if rec := do(h, http.MethodPatch, "/api/tasks/10/assignee", `{"assignedToId":8}`); rec.Code != http.StatusOK {
		t.Fatalf("assign status = %d", rec.Code)
	}
	if tasks.assignee == nil || *tasks.assignee != 8 {
		t.Errorf("assignee = %v, want 8", tasks.assignee)
	}

	if rec := do(h, http.MethodPut, "/api/tasks/10", `{"title":"New","status":"in_progress"}`); rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	if tasks.update.Title == nil || *tasks.update.Title != "New" || tasks.update.Status == nil || *tasks.update.Status != model.StatusInProgress {
		t.Errorf("update request = %+v", tasks.update)
	}
}

func TestTaskHandler_Users(t *testing.T) {
	users := &stubUsers{users: []model.User{{ID: 7, Username: "alice", HashedPassword: "secret-hash"}}}
	h := newTaskRouter(&stubTasks{}, users)

	rec := do(h, http.MethodGet, "/api/tasks/users/search?query=al", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if users.query != "al" {
		t.Errorf("query = %q", users.query)
	}
	if strings.Contains(rec.Body.String(), "secret-hash") {
		t.Error("password hash serialized")
	}

	users.err = fmt.Errorf("not allowed: %w", common.ErrForbidden)
	if rec := do(h, http.MethodGet, "/api/tasks/users", ""); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
