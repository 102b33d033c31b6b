package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"taskweb/internal/api/middleware"
	"taskweb/internal/app/service"
	"taskweb/internal/common"
	"taskweb/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type TaskUseCase interface {
	List(ctx context.Context, actor *model.User, req service.ListTasksRequest) ([]model.Task, error)
	Stats(ctx context.Context, actor *model.User) (model.TaskStats, error)
	Get(ctx context.Context, actor *model.User, id int64) (*model.Task, error)
	Create(ctx context.Context, actor *model.User, req service.CreateTaskRequest) (*model.Task, error)
	Update(ctx context.Context, actor *model.User, id int64, req service.UpdateTaskRequest) (*model.Task, error)
	ChangeStatus(ctx context.Context, actor *model.User, id int64, status model.TaskStatus) (*model.Task, error)
	Assign(ctx context.Context, actor *model.User, id int64, assigneeID *int64) (*model.Task, error)
	Delete(ctx context.Context, actor *model.User, id int64) error
	History(ctx context.Context, actor *model.User, id int64) ([]model.TaskHistoryEntry, error)
}

type UserDirectory interface {
	ListAssignable(ctx context.Context, actor *model.User) ([]model.User, error)
	Search(ctx context.Context, actor *model.User, query string) ([]model.User, error)
}

type TaskHandler struct {
	taskService TaskUseCase
	users       UserDirectory
}

func NewTaskHandler(taskService TaskUseCase, users UserDirectory) *TaskHandler {
	return &TaskHandler{taskService: taskService, users: users}
}

func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listTasks)
	r.Post("/", h.createTask)
	r.Get("/stats", h.stats)
	r.Get("/users", h.listUsers)
	r.Get("/users/search", h.searchUsers)

	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", h.getTask)
		r.Put("/", h.updateTask)
		r.Delete("/", h.deleteTask)
		r.Patch("/status", h.changeStatus)
		r.Patch("/assignee", h.assign)
		r.Get("/history", h.history)
	})
}

type statusRequest struct {
	Status model.TaskStatus `json:"status"`
}

type assigneeRequest struct {
	AssignedToID *int64 `json:"assignedToId"`
}

func (h *TaskHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.ListTasksRequest{Search: q.Get("search")}
	if s := q.Get("status"); s != "" {
		status := model.TaskStatus(s)
		req.Status = &status
	}
	var err error
	if req.Limit, err = queryInt(q.Get("limit")); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	if req.Offset, err = queryInt(q.Get("offset")); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	tasks, err := h.taskService.List(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	common.RespondWithJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) createTask(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTaskRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	task, err := h.taskService.Create(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.taskService.Stats(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, stats)
}

func (h *TaskHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAssignable(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	respondUsers(w, users)
}

func (h *TaskHandler) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Search(r.Context(), middleware.UserFromContext(r.Context()), r.URL.Query().Get("query"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	respondUsers(w, users)
}

func (h *TaskHandler) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	task, err := h.taskService.Get(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	var req service.UpdateTaskRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	task, err := h.taskService.Update(r.Context(), middleware.UserFromContext(r.Context()), id, req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	var req statusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	task, err := h.taskService.ChangeStatus(r.Context(), middleware.UserFromContext(r.Context()), id, req.Status)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) assign(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	var req assigneeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	task, err := h.taskService.Assign(r.Context(), middleware.UserFromContext(r.Context()), id, req.AssignedToID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	if err := h.taskService.Delete(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) history(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	entries, err := h.taskService.History(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []model.TaskHistoryEntry{}
	}
	common.RespondWithJSON(w, http.StatusOK, entries)
}

func taskIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "taskID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q: %w", raw, common.ErrBadRequest)
	}
	return id, nil
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number: %w", raw, common.ErrBadRequest)
	}
	return n, nil
}

func respondUsers(w http.ResponseWriter, users []model.User) {
	if users == nil {
		users = []model.User{}
	}
	common.RespondWithJSON(w, http.StatusOK, users)
}
