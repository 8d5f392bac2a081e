package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/paper-processor/pkg/logger"
)

// QueueName 论文任务使用的队列
const QueueName = "papers"

// AsynqDispatcher 通过 Redis 把任务交给独立的 worker 进程
type AsynqDispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	max       int
	timeout   time.Duration
	logger    logger.Logger
}

// AsynqConfig 定义队列配置
type AsynqConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxInFlight    int
	ProcessTimeout time.Duration
}

func (c AsynqConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func NewAsynqDispatcher(cfg AsynqConfig, log logger.Logger) *AsynqDispatcher {
	redisOpt := cfg.RedisOpt()
	return &AsynqDispatcher{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		max:       cfg.MaxInFlight,
		timeout:   cfg.ProcessTimeout,
		logger:    log.Named("dispatcher"),
	}
}

// Submit 不重试：失败的流水线由操作员重新上传
func (d *AsynqDispatcher) Submit(ctx context.Context, taskID string) error {
	n, err := d.InFlight(ctx)
	if err != nil {
		return err
	}
	if n >= d.max {
		return ErrOverloaded
	}

	payload, err := EncodePayload(taskID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueName),
		asynq.TaskID(taskID),
		asynq.MaxRetry(0),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}

	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(TaskTypePaperProcess, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	d.logger.Debug("Task enqueued", logger.String("taskId", info.ID), logger.String("queue", info.Queue))
	return nil
}

// InFlight 队列中等待与执行中的任务数，队列尚未创建时为 0
func (d *AsynqDispatcher) InFlight(ctx context.Context) (int, error) {
	info, err := d.inspector.GetQueueInfo(QueueName)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return info.Pending + info.Active + info.Scheduled + info.Retry, nil
}

func (d *AsynqDispatcher) Close() error {
	return errors.Join(d.client.Close(), d.inspector.Close())
}
