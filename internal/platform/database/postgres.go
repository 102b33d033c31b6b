package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskweb/internal/platform/config"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/jmoiron/sqlx"
)

const (
	driverName     = "pgx"
	connectTimeout = 5 * time.Second
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB bundles the connection pool with a query builder using $n placeholders.
type DB struct {
	*sqlx.DB
	Builder squirrel.StatementBuilderType
}

// Connect opens the pool and verifies it with a ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*DB, error) {
	return Open(ctx, cfg.DatabaseURL(), logger)
}

func Open(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	logger.Info("connected to PostgreSQL")

	return &DB{
		DB:      db,
		Builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Migrate applies the embedded migrations to the database at migrationURL
// (pgx5:// scheme).
func Migrate(migrationURL string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// Status is the result of the database probe.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  int    `json:"result,omitempty"`
}

// Probe runs a trivial query, mirroring the db-status check.
func (db *DB) Probe(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var result int
	if err := db.GetContext(ctx, &result, "SELECT 1 + 1 AS result"); err != nil {
		return Status{Status: "error", Message: "database unavailable"}
	}
	return Status{Status: "success", Message: "database connection ok", Result: result}
}

func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}
