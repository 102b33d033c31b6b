package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskweb/internal/domain/model"
	"taskweb/internal/platform/config"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when no event arrived before the timeout.
var ErrEmpty = errors.New("queue is empty")

func ConnectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
	return rdb, nil
}

// TaskEventQueue is a FIFO of task events stored in a Redis list: producers
// LPUSH, the history worker BRPOPs.
type TaskEventQueue struct {
	rdb  redis.Cmdable
	name string
}

func NewTaskEventQueue(rdb redis.Cmdable, name string) *TaskEventQueue {
	return &TaskEventQueue{rdb: rdb, name: name}
}

func (q *TaskEventQueue) Name() string {
	return q.name
}

func (q *TaskEventQueue) Publish(ctx context.Context, event model.TaskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal task event: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("failed to push task event to %s: %w", q.name, err)
	}
	return nil
}

// Pop blocks for up to timeout waiting for the next event.
func (q *TaskEventQueue) Pop(ctx context.Context, timeout time.Duration) (model.TaskEvent, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.TaskEvent{}, ErrEmpty
		}
		return model.TaskEvent{}, err
	}

	// res is [queueName, value]
	if len(res) < 2 || res[1] == "" {
		return model.TaskEvent{}, ErrEmpty
	}

	var event model.TaskEvent
	if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
		return model.TaskEvent{}, fmt.Errorf("malformed task event %q: %w", res[1], err)
	}
	return event, nil
}

func (q *TaskEventQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}
