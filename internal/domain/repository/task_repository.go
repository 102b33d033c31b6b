package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskweb/internal/common"
	"taskweb/internal/domain/model"
	"taskweb/internal/platform/database"

	"github.com/Masterminds/squirrel"
)

// TaskFilter narrows List and Stats. A nil VisibleTo means every task;
// otherwise only tasks created by or assigned to that user are returned.
type TaskFilter struct {
	VisibleTo  *int64
	Status     *model.TaskStatus
	AssignedTo *int64
	Search     string
	Limit      int
	Offset     int
}

type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, id int64) (*model.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	// UpdateStatus moves the task from one status to another. It fails with
	// ErrConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id int64, from, to model.TaskStatus) (*model.Task, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, filter TaskFilter) (model.TaskStats, error)
}

type pgTaskRepository struct {
	db *database.DB
}

func NewPgTaskRepository(db *database.DB) TaskRepository {
	return &pgTaskRepository{db: db}
}

func (r *pgTaskRepository) selectTasks() squirrel.SelectBuilder {
	return r.db.Builder.
		Select(
			"t.id", "t.title", "t.slug", "t.description", "t.status",
			"t.creator_id", "t.assigned_to_id", "t.due_date", "t.created_at", "t.updated_at",
			"cu.username AS creator_username", "au.username AS assigned_to_username",
		).
		From("tasks t").
		LeftJoin("users cu ON cu.id = t.creator_id").
		LeftJoin("users au ON au.id = t.assigned_to_id")
}

func applyTaskFilter(b squirrel.SelectBuilder, f TaskFilter) squirrel.SelectBuilder {
	if f.VisibleTo != nil {
		b = b.Where(squirrel.Or{
			squirrel.Eq{"t.creator_id": *f.VisibleTo},
			squirrel.Eq{"t.assigned_to_id": *f.VisibleTo},
		})
	}
	if f.Status != nil {
		b = b.Where(squirrel.Eq{"t.status": *f.Status})
	}
	if f.AssignedTo != nil {
		b = b.Where(squirrel.Eq{"t.assigned_to_id": *f.AssignedTo})
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		b = b.Where(squirrel.Or{
			squirrel.ILike{"t.title": pattern},
			squirrel.ILike{"t.description": pattern},
		})
	}
	return b
}

func (r *pgTaskRepository) Create(ctx context.Context, t *model.Task) error {
	query, args, err := r.db.Builder.
		Insert("tasks").
		Columns("title", "slug", "description", "status", "creator_id", "assigned_to_id", "due_date").
		Values(t.Title, t.Slug, t.Description, t.Status, t.CreatorID, t.AssignedToID, t.DueDate).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("pgTaskRepository.Create: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if common.IsForeignKeyViolation(err) {
			return fmt.Errorf("creator or assignee does not exist: %w", common.ErrValidation)
		}
		return fmt.Errorf("pgTaskRepository.Create: %w", err)
	}
	return nil
}

func (r *pgTaskRepository) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	query, args, err := r.selectTasks().Where(squirrel.Eq{"t.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.FindByID: %w", err)
	}

	task := &model.Task{}
	if err := r.db.GetContext(ctx, task, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTaskRepository.FindByID: %w", err)
	}
	return task, nil
}

func (r *pgTaskRepository) List(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	b := applyTaskFilter(r.selectTasks(), filter).OrderBy("t.created_at DESC", "t.id DESC")
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		b = b.Offset(uint64(filter.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.List: %w", err)
	}

	tasks := []model.Task{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("pgTaskRepository.List: %w", err)
	}
	return tasks, nil
}

func (r *pgTaskRepository) Update(ctx context.Context, t *model.Task) error {
	query, args, err := r.db.Builder.
		Update("tasks").
		SetMap(map[string]interface{}{
			"title":          t.Title,
			"slug":           t.Slug,
			"description":    t.Description,
			"status":         t.Status,
			"assigned_to_id": t.AssignedToID,
			"due_date":       t.DueDate,
			"updated_at":     squirrel.Expr("NOW()"),
		}).
		Where(squirrel.Eq{"id": t.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("pgTaskRepository.Update: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		if common.IsForeignKeyViolation(err) {
			return fmt.Errorf("assignee does not exist: %w", common.ErrValidation)
		}
		return fmt.Errorf("pgTaskRepository.Update: %w", err)
	}
	return nil
}

func (r *pgTaskRepository) UpdateStatus(ctx context.Context, id int64, from, to model.TaskStatus) (*model.Task, error) {
	query, args, err := r.db.Builder.
		Update("tasks").
		Set("status", to).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "status": from}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.UpdateStatus: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.UpdateStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.UpdateStatus: %w", err)
	}
	if n == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("task %d is no longer %s: %w", id, from, common.ErrConflict)
	}
	return r.FindByID(ctx, id)
}

func (r *pgTaskRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := r.db.Builder.Delete("tasks").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("pgTaskRepository.Delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pgTaskRepository.Delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgTaskRepository) Stats(ctx context.Context, filter TaskFilter) (model.TaskStats, error) {
	b := r.db.Builder.
		Select(
			"COUNT(*) AS total",
			"COUNT(*) FILTER (WHERE t.status = 'pending') AS pending",
			"COUNT(*) FILTER (WHERE t.status = 'in_progress') AS in_progress",
			"COUNT(*) FILTER (WHERE t.status = 'done') AS done",
		).
		From("tasks t")
	b = applyTaskFilter(b, filter)

	query, args, err := b.ToSql()
	if err != nil {
		return model.TaskStats{}, fmt.Errorf("pgTaskRepository.Stats: %w", err)
	}

	var stats model.TaskStats
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return model.TaskStats{}, fmt.Errorf("pgTaskRepository.Stats: %w", err)
	}
	return stats, nil
}
