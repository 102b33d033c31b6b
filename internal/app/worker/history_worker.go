package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"taskweb/internal/domain/model"
	"taskweb/internal/domain/repository"
	"taskweb/internal/platform/queue"
)

const (
	defaultPollTimeout = 5 * time.Second
	errorBackoff       = 2 * time.Second
)

// EventSource yields queued task events. Pop returns queue.ErrEmpty when
// nothing arrived within timeout.
type EventSource interface {
	Pop(ctx context.Context, timeout time.Duration) (model.TaskEvent, error)
}

// HistoryWorker drains the task event queue into task_history.
type HistoryWorker struct {
	source      EventSource
	historyRepo repository.TaskHistoryRepository
	logger      *slog.Logger
	pollTimeout time.Duration
	backoff     time.Duration
}

func NewHistoryWorker(source EventSource, historyRepo repository.TaskHistoryRepository, logger *slog.Logger) *HistoryWorker {
	return &HistoryWorker{
		source:      source,
		historyRepo: historyRepo,
		logger:      logger.With("worker", "history"),
		pollTimeout: defaultPollTimeout,
		backoff:     errorBackoff,
	}
}

// Start runs until ctx is cancelled.
func (w *HistoryWorker) Start(ctx context.Context) {
	w.logger.Info("history worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("history worker stopping")
			return
		}

		event, err := w.source.Pop(ctx, w.pollTimeout)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrEmpty):
				continue
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				continue
			default:
				w.logger.Error("failed to read task event", slog.Any("error", err))
				w.sleep(ctx)
				continue
			}
		}

		if err := w.Process(ctx, event); err != nil {
			w.logger.Error("failed to record task event",
				slog.String("event_id", event.ID),
				slog.Int64("task_id", event.TaskID),
				slog.Any("error", err),
			)
		}
	}
}

// Process stores one event as a history entry.
func (w *HistoryWorker) Process(ctx context.Context, event model.TaskEvent) error {
	entry := &model.TaskHistoryEntry{
		EventID:    event.ID,
		TaskID:     event.TaskID,
		ActorID:    event.ActorID,
		Kind:       event.Kind,
		FromValue:  event.From,
		ToValue:    event.To,
		OccurredAt: event.OccurredAt,
	}
	if err := w.historyRepo.Append(ctx, entry); err != nil {
		return err
	}
	w.logger.Debug("task event recorded", slog.String("event_id", event.ID), slog.String("kind", string(event.Kind)))
	return nil
}

func (w *HistoryWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
