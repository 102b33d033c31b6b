package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskweb/internal/common"
	"taskweb/internal/domain/model"
	"taskweb/internal/platform/database"

	"github.com/Masterminds/squirrel"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Search(ctx context.Context, query string, limit int) ([]model.User, error)
	Count(ctx context.Context) (int, error)
}

type pgUserRepository struct {
	db *database.DB
}

func NewPgUserRepository(db *database.DB) UserRepository {
	return &pgUserRepository{db: db}
}

func (r *pgUserRepository) selectUsers() squirrel.SelectBuilder {
	return r.db.Builder.
		Select("u.id", "u.username", "u.password_hash", "ro.name AS role", "u.role_id", "u.created_at", "u.updated_at").
		From("users u").
		Join("roles ro ON ro.id = u.role_id")
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	if !user.Role.Valid() {
		return fmt.Errorf("unknown role %q: %w", user.Role, common.ErrValidation)
	}
	user.RoleID = user.Role.ID()

	query, args, err := r.db.Builder.
		Insert("users").
		Columns("username", "password_hash", "role_id").
		Values(user.Username, user.HashedPassword, user.RoleID).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}

	err = r.db.QueryRowxContext(ctx, query, args...).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("user with given username already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	return nil
}

func (r *pgUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "pgUserRepository.FindByUsername", squirrel.Eq{"u.username": username})
}

func (r *pgUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx, "pgUserRepository.FindByID", squirrel.Eq{"u.id": id})
}

func (r *pgUserRepository) findOne(ctx context.Context, op string, where squirrel.Sqlizer) (*model.User, error) {
	query, args, err := r.selectUsers().Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &model.User{}
	if err := r.db.GetContext(ctx, user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (r *pgUserRepository) List(ctx context.Context) ([]model.User, error) {
	query, args, err := r.selectUsers().OrderBy("u.username ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.List: %w", err)
	}

	users := []model.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("pgUserRepository.List: %w", err)
	}
	return users, nil
}

// Search matches usernames containing query, case-insensitively.
func (r *pgUserRepository) Search(ctx context.Context, query string, limit int) ([]model.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	sqlQuery, args, err := r.selectUsers().
		Where(squirrel.ILike{"u.username": pattern}).
		OrderBy("u.username ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.Search: %w", err)
	}

	users := []model.User{}
	if err := r.db.SelectContext(ctx, &users, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("pgUserRepository.Search: %w", err)
	}
	return users, nil
}

func (r *pgUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("pgUserRepository.Count: %w", err)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
