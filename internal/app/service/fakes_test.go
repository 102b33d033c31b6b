package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"taskweb/internal/common"
	"taskweb/internal/domain/model"
	"taskweb/internal/domain/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]model.User
	err    error
}

func newMemUserRepo(users ...model.User) *memUserRepo {
	r := &memUserRepo{users: map[int64]model.User{}}
	for _, u := range users {
		r.users[u.ID] = u
		if u.ID > r.nextID {
			r.nextID = u.ID
		}
	}
	return r
}

func (r *memUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return common.ErrConflict
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.RoleID = u.Role.ID()
	u.CreatedAt = time.Now()
	r.users[u.ID] = *u
	return nil
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &u, nil
}

func (r *memUserRepo) List(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *memUserRepo) Search(ctx context.Context, query string, limit int) ([]model.User, error) {
	all, _ := r.List(ctx)
	var out []model.User
	for _, u := range all {
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) && len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUserRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	return len(r.users), nil
}

type memTaskRepo struct {
	mu      sync.Mutex
	nextID  int64
	tasks   map[int64]model.Task
	filters []repository.TaskFilter
}

func newMemTaskRepo(tasks ...model.Task) *memTaskRepo {
	r := &memTaskRepo{tasks: map[int64]model.Task{}}
	for _, t := range tasks {
		r.tasks[t.ID] = t
		if t.ID > r.nextID {
			r.nextID = t.ID
		}
	}
	return r
}

func (r *memTaskRepo) Create(_ context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.tasks[t.ID] = *t
	return nil
}

func (r *memTaskRepo) FindByID(_ context.Context, id int64) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &t, nil
}

func (r *memTaskRepo) visible(f repository.TaskFilter) []model.Task {
	var out []model.Task
	for _, t := range r.tasks {
		if f.VisibleTo != nil && t.CreatorID != *f.VisibleTo && !t.IsAssignedTo(*f.VisibleTo) {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memTaskRepo) List(_ context.Context, f repository.TaskFilter) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, f)
	return r.visible(f), nil
}

func (r *memTaskRepo) Update(_ context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return common.ErrNotFound
	}
	t.UpdatedAt = time.Now()
	r.tasks[t.ID] = *t
	return nil
}

func (r *memTaskRepo) UpdateStatus(_ context.Context, id int64, from, to model.TaskStatus) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if t.Status != from {
		return nil, common.ErrConflict
	}
	t.Status = to
	r.tasks[id] = t
	return &t, nil
}

func (r *memTaskRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *memTaskRepo) Stats(_ context.Context, f repository.TaskFilter) (model.TaskStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s model.TaskStats
	for _, t := range r.visible(f) {
		s.Total++
		switch t.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusInProgress:
			s.InProgress++
		case model.StatusDone:
			s.Done++
		}
	}
	return s, nil
}

type memHistoryRepo struct {
	entries []model.TaskHistoryEntry
}

func (r *memHistoryRepo) Append(_ context.Context, e *model.TaskHistoryEntry) error {
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memHistoryRepo) ListByTask(_ context.Context, taskID int64) ([]model.TaskHistoryEntry, error) {
	var out []model.TaskHistoryEntry
	for _, e := range r.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.TaskEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e model.TaskEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) kinds() []model.TaskEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.TaskEventKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

type memRevoker struct {
	revoked map[string]time.Time
	err     error
}

func (r *memRevoker) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if r.err != nil {
		return r.err
	}
	if r.revoked == nil {
		r.revoked = map[string]time.Time{}
	}
	r.revoked[tokenID] = expiresAt
	return nil
}

var errBoom = errors.New("boom")
