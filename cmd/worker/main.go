// Command worker runs the task history worker on its own, for deployments
// that set HISTORY_WORKER_INPROCESS=false on the API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"taskweb/internal/app/worker"
	"taskweb/internal/domain/repository"
	"taskweb/internal/platform/config"
	"taskweb/internal/platform/database"
	"taskweb/internal/platform/queue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := queue.ConnectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	eventQueue := queue.NewTaskEventQueue(rdb, cfg.TaskEventQueue)
	historyWorker := worker.NewHistoryWorker(eventQueue, repository.NewPgTaskHistoryRepository(db), logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		historyWorker.Start(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	wg.Wait()
	logger.Info("worker exited cleanly")
	return nil
}
