package repository

import (
	"context"
	"fmt"

	"taskweb/internal/domain/model"
	"taskweb/internal/platform/database"

	"github.com/Masterminds/squirrel"
)

type TaskHistoryRepository interface {
	// Append stores the entry. Replaying an event id already stored is a no-op.
	Append(ctx context.Context, entry *model.TaskHistoryEntry) error
	ListByTask(ctx context.Context, taskID int64) ([]model.TaskHistoryEntry, error)
}

type pgTaskHistoryRepository struct {
	db *database.DB
}

func NewPgTaskHistoryRepository(db *database.DB) TaskHistoryRepository {
	return &pgTaskHistoryRepository{db: db}
}

func (r *pgTaskHistoryRepository) Append(ctx context.Context, e *model.TaskHistoryEntry) error {
	query, args, err := r.db.Builder.
		Insert("task_history").
		Columns("event_id", "task_id", "actor_id", "kind", "from_value", "to_value", "occurred_at").
		Values(e.EventID, e.TaskID, e.ActorID, e.Kind, e.FromValue, e.ToValue, e.OccurredAt).
		Suffix("ON CONFLICT (event_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("pgTaskHistoryRepository.Append: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("pgTaskHistoryRepository.Append: %w", err)
	}
	return nil
}

func (r *pgTaskHistoryRepository) ListByTask(ctx context.Context, taskID int64) ([]model.TaskHistoryEntry, error) {
	query, args, err := r.db.Builder.
		Select("id", "event_id", "task_id", "actor_id", "kind", "from_value", "to_value", "occurred_at").
		From("task_history").
		Where(squirrel.Eq{"task_id": taskID}).
		OrderBy("occurred_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgTaskHistoryRepository.ListByTask: %w", err)
	}

	entries := []model.TaskHistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("pgTaskHistoryRepository.ListByTask: %w", err)
	}
	return entries, nil
}
