package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"taskweb/internal/domain/model"

	"github.com/google/uuid"
)

// TaskEventPublisher hands task events to the history pipeline.
type TaskEventPublisher interface {
	Publish(ctx context.Context, event model.TaskEvent) error
}

// TaskEventService records task changes asynchronously. Publishing is best
// effort: a failure is logged and never fails the change that caused it.
type TaskEventService struct {
	publisher TaskEventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewTaskEventService(publisher TaskEventPublisher, logger *slog.Logger) *TaskEventService {
	return &TaskEventService{
		publisher: publisher,
		logger:    logger.With("service", "task_events"),
		now:       time.Now,
	}
}

func (s *TaskEventService) TaskCreated(ctx context.Context, task *model.Task, actorID int64) {
	to := string(task.Status)
	s.publish(ctx, task.ID, actorID, model.EventCreated, nil, &to)
}

func (s *TaskEventService) StatusChanged(ctx context.Context, taskID, actorID int64, from, to model.TaskStatus) {
	f, t := string(from), string(to)
	s.publish(ctx, taskID, actorID, model.EventStatusChanged, &f, &t)
}

func (s *TaskEventService) Assigned(ctx context.Context, taskID, actorID int64, from, to *int64) {
	s.publish(ctx, taskID, actorID, model.EventAssigned, formatUserID(from), formatUserID(to))
}

func (s *TaskEventService) publish(ctx context.Context, taskID, actorID int64, kind model.TaskEventKind, from, to *string) {
	event := model.TaskEvent{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		ActorID:    actorID,
		Kind:       kind,
		From:       from,
		To:         to,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish task event",
			slog.String("event_id", event.ID),
			slog.Int64("task_id", taskID),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}
}

func formatUserID(id *int64) *string {
	if id == nil {
		return nil
	}
	s := strconv.FormatInt(*id, 10)
	return &s
}
