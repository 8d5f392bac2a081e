package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/internal/store"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// Store 每个任务一个 JSON 值：task_status:<taskId>
type Store struct {
	client *goredis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewStore(client *goredis.Client, ttl time.Duration, log logger.Logger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		logger: log.Named("taskstore.redis"),
	}
}

func (s *Store) Create(ctx context.Context, task *models.ProcessingTask) error {
	store.Touch(task, time.Now())
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.client.SetNX(ctx, store.Key(task.TaskID), data, store.Expiry(task, s.ttl)).Result()
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	if !ok {
		return store.ErrExists
	}
	return nil
}

func (s *Store) Update(ctx context.Context, task *models.ProcessingTask) error {
	store.Touch(task, time.Now())
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.client.SetXX(ctx, store.Key(task.TaskID), data, store.Expiry(task, s.ttl)).Result()
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	data, err := s.client.Get(ctx, store.Key(taskID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	var task models.ProcessingTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

func (s *Store) Delete(ctx context.Context, taskID string) error {
	n, err := s.client.Del(ctx, store.Key(taskID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*models.ProcessingTask, error) {
	var tasks []*models.ProcessingTask
	iter := s.client.Scan(ctx, 0, store.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		taskID := strings.TrimPrefix(iter.Val(), store.KeyPrefix)
		task, err := s.Get(ctx, taskID)
		if errors.Is(err, store.ErrNotFound) {
			// 扫描期间过期
			continue
		}
		if err != nil {
			s.logger.Warn("Skipping unreadable task", logger.String("taskId", taskID), logger.Error(err))
			continue
		}
		tasks = append(tasks, task)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}

	store.SortNewestFirst(tasks)
	return tasks, nil
}

// Close 客户端由调用方共享，这里不关闭
func (s *Store) Close() error {
	return nil
}
