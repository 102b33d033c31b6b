package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"taskweb/internal/api"
	"taskweb/internal/app/service"
	"taskweb/internal/app/worker"
	"taskweb/internal/common/security"
	"taskweb/internal/domain/repository"
	"taskweb/internal/platform/config"
	"taskweb/internal/platform/database"
	"taskweb/internal/platform/queue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database
	if cfg.DBAutoMigrate {
		if err := database.Migrate(cfg.MigrationURL(), logger); err != nil {
			return err
		}
	}
	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// 3. Redis
	rdb, err := queue.ConnectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// 4. Repositories
	userRepo := repository.NewCachedUserRepository(repository.NewPgUserRepository(db), cfg.UserCacheSize, cfg.UserCacheTTL)
	taskRepo := repository.NewPgTaskRepository(db)
	historyRepo := repository.NewPgTaskHistoryRepository(db)

	// 5. Services
	issuer := security.NewTokenIssuer(cfg.JWTKey, cfg.JWTExp)
	revocations := security.NewRevocationList(rdb)
	eventQueue := queue.NewTaskEventQueue(rdb, cfg.TaskEventQueue)

	authService := service.NewAuthService(userRepo, issuer, revocations, logger)
	userService := service.NewUserService(userRepo, cfg.BcryptCost)
	eventService := service.NewTaskEventService(eventQueue, logger)
	taskService := service.NewTaskService(taskRepo, historyRepo, userRepo, eventService, logger)

	if _, err := authService.BootstrapAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword, cfg.BcryptCost); err != nil {
		return err
	}

	// 6. History worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var wg sync.WaitGroup
	if cfg.HistoryWorkerInProcess {
		historyWorker := worker.NewHistoryWorker(eventQueue, historyRepo, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			historyWorker.Start(workerCtx)
		}()
	}

	// 7. Router and HTTP server
	router := api.NewRouter(api.Dependencies{
		Logger:         logger,
		Issuer:         issuer,
		Users:          userRepo,
		Revocations:    revocations,
		Database:       db,
		AuthService:    authService,
		TaskService:    taskService,
		UserService:    userService,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// 8. Graceful shutdown
	select {
	case err := <-serverErr:
		workerCancel()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	workerCancel()
	wg.Wait()

	logger.Info("server and worker stopped gracefully")
	return nil
}
