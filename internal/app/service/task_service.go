package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"taskweb/internal/common"
	"taskweb/internal/domain/authz"
	"taskweb/internal/domain/model"
	"taskweb/internal/domain/repository"

	"github.com/gosimple/slug"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	defaultPageSize   = 50
	maxPageSize       = 200
)

type TaskService struct {
	taskRepo    repository.TaskRepository
	historyRepo repository.TaskHistoryRepository
	userRepo    repository.UserRepository
	events      *TaskEventService
	logger      *slog.Logger
}

func NewTaskService(
	taskRepo repository.TaskRepository,
	historyRepo repository.TaskHistoryRepository,
	userRepo repository.UserRepository,
	events *TaskEventService,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		taskRepo:    taskRepo,
		historyRepo: historyRepo,
		userRepo:    userRepo,
		events:      events,
		logger:      logger.With("service", "tasks"),
	}
}

type ListTasksRequest struct {
	Status *model.TaskStatus
	Search string
	Limit  int
	Offset int
}

type CreateTaskRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	AssignedToID *int64     `json:"assignedToId,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
}

// UpdateTaskRequest carries the fields to change; nil means unchanged.
type UpdateTaskRequest struct {
	Title        *string           `json:"title,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Status       *model.TaskStatus `json:"status,omitempty"`
	AssignedToID *int64            `json:"assignedToId,omitempty"`
	DueDate      *time.Time        `json:"dueDate,omitempty"`
}

// visibility returns the filter restricting actor to the tasks they may see.
func visibility(actor *model.User) *int64 {
	if authz.CanSeeAllTasks(actor) {
		return nil
	}
	id := actor.ID
	return &id
}

func (s *TaskService) List(ctx context.Context, actor *model.User, req ListTasksRequest) ([]model.Task, error) {
	if actor == nil {
		return nil, common.ErrUnauthorized
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", *req.Status, common.ErrValidation)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	return s.taskRepo.List(ctx, repository.TaskFilter{
		VisibleTo: visibility(actor),
		Status:    req.Status,
		Search:    strings.TrimSpace(req.Search),
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *TaskService) Stats(ctx context.Context, actor *model.User) (model.TaskStats, error) {
	if actor == nil {
		return model.TaskStats{}, common.ErrUnauthorized
	}
	return s.taskRepo.Stats(ctx, repository.TaskFilter{VisibleTo: visibility(actor)})
}

func (s *TaskService) Get(ctx context.Context, actor *model.User, id int64) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewTask(actor, *task) {
		return nil, fmt.Errorf("task %d is not visible to you: %w", id, common.ErrForbidden)
	}
	return task, nil
}

func (s *TaskService) Create(ctx context.Context, actor *model.User, req CreateTaskRequest) (*model.Task, error) {
	if !authz.CanCreateTask(actor) {
		return nil, fmt.Errorf("not allowed to create tasks: %w", common.ErrForbidden)
	}

	title := strings.TrimSpace(req.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}
	if req.AssignedToID != nil {
		if err := s.ensureUserExists(ctx, *req.AssignedToID); err != nil {
			return nil, err
		}
	}

	task := &model.Task{
		Title:        title,
		Slug:         slug.Make(title),
		Description:  req.Description,
		Status:       model.StatusPending,
		CreatorID:    actor.ID,
		AssignedToID: req.AssignedToID,
		DueDate:      req.DueDate,
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.events.TaskCreated(ctx, task, actor.ID)
	if task.AssignedToID != nil {
		s.events.Assigned(ctx, task.ID, actor.ID, nil, task.AssignedToID)
	}
	return s.taskRepo.FindByID(ctx, task.ID)
}

// Update edits a task. Each field is gated by the permission that governs it:
// editing needs CanEditTask, reassigning also CanAssignTask, and a status
// change also CanChangeStatus plus a valid transition.
func (s *TaskService) Update(ctx context.Context, actor *model.User, id int64, req UpdateTaskRequest) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanEditTask(actor, *task) {
		return nil, fmt.Errorf("not allowed to edit task %d: %w", id, common.ErrForbidden)
	}

	prevStatus := task.Status
	prevAssignee := task.AssignedToID

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		task.Title = title
		task.Slug = slug.Make(title)
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return nil, err
		}
		task.Description = *req.Description
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}
	if req.AssignedToID != nil && !sameAssignee(prevAssignee, req.AssignedToID) {
		if !authz.CanAssignTask(actor) {
			return nil, fmt.Errorf("not allowed to reassign task %d: %w", id, common.ErrForbidden)
		}
		if err := s.ensureUserExists(ctx, *req.AssignedToID); err != nil {
			return nil, err
		}
		task.AssignedToID = req.AssignedToID
	}
	if req.Status != nil && *req.Status != prevStatus {
		if !authz.CanChangeStatus(actor, *task) {
			return nil, fmt.Errorf("not allowed to change the status of task %d: %w", id, common.ErrForbidden)
		}
		if err := validateTransition(prevStatus, *req.Status); err != nil {
			return nil, err
		}
		task.Status = *req.Status
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if task.Status != prevStatus {
		s.events.StatusChanged(ctx, task.ID, actor.ID, prevStatus, task.Status)
	}
	if !sameAssignee(prevAssignee, task.AssignedToID) {
		s.events.Assigned(ctx, task.ID, actor.ID, prevAssignee, task.AssignedToID)
	}
	return s.taskRepo.FindByID(ctx, task.ID)
}

func (s *TaskService) ChangeStatus(ctx context.Context, actor *model.User, id int64, status model.TaskStatus) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanChangeStatus(actor, *task) {
		return nil, fmt.Errorf("not allowed to change the status of task %d: %w", id, common.ErrForbidden)
	}
	if err := validateTransition(task.Status, status); err != nil {
		return nil, err
	}

	updated, err := s.taskRepo.UpdateStatus(ctx, id, task.Status, status)
	if err != nil {
		return nil, err
	}
	s.events.StatusChanged(ctx, id, actor.ID, task.Status, status)
	return updated, nil
}

// Assign sets or clears (assigneeID == nil) the task's assignee.
func (s *TaskService) Assign(ctx context.Context, actor *model.User, id int64, assigneeID *int64) (*model.Task, error) {
	if !authz.CanAssignTask(actor) {
		return nil, fmt.Errorf("not allowed to assign tasks: %w", common.ErrForbidden)
	}
	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sameAssignee(task.AssignedToID, assigneeID) {
		return task, nil
	}
	if assigneeID != nil {
		if err := s.ensureUserExists(ctx, *assigneeID); err != nil {
			return nil, err
		}
	}

	prev := task.AssignedToID
	task.AssignedToID = assigneeID
	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to assign task: %w", err)
	}
	s.events.Assigned(ctx, id, actor.ID, prev, assigneeID)
	return s.taskRepo.FindByID(ctx, id)
}

func (s *TaskService) Delete(ctx context.Context, actor *model.User, id int64) error {
	if !authz.CanDeleteTask(actor) {
		return fmt.Errorf("not allowed to delete tasks: %w", common.ErrForbidden)
	}
	if err := s.taskRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", slog.Int64("task_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

func (s *TaskService) History(ctx context.Context, actor *model.User, id int64) ([]model.TaskHistoryEntry, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.historyRepo.ListByTask(ctx, id)
}

func (s *TaskService) ensureUserExists(ctx context.Context, id int64) error {
	if _, err := s.userRepo.FindByID(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("user %d does not exist: %w", id, common.ErrValidation)
		}
		return err
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("title is required: %w", common.ErrValidation)
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return fmt.Errorf("title exceeds %d characters: %w", maxTitleLen, common.ErrValidation)
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters: %w", maxDescriptionLen, common.ErrValidation)
	}
	return nil
}

func validateTransition(from, to model.TaskStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q: %w", to, common.ErrValidation)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("cannot move a task from %s to %s: %w", from, to, common.ErrInvalidTransition)
	}
	return nil
}

func sameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
