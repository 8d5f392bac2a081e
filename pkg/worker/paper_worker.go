package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/paper-processor/pkg/logger"
	"github.com/feichai0017/paper-processor/pkg/queue"
)

// PaperWorker 从队列中取出任务并执行流水线
type PaperWorker struct {
	BaseWorker
	handler queue.Handler
}

func NewPaperWorker(cfg *Config, handler queue.Handler, log logger.Logger) *PaperWorker {
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{queue.QueueName: 1}
	}

	server := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
	})

	w := &PaperWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		handler: handler,
	}

	// 注册任务处理器
	w.mux.HandleFunc(queue.TaskTypePaperProcess, w.handlePaperProcess)
	return w
}

// handlePaperProcess 流水线失败已写入任务状态，这里不再让 asynq 重试
func (w *PaperWorker) handlePaperProcess(ctx context.Context, t *asynq.Task) error {
	taskID, err := queue.DecodePayload(t.Payload())
	if err != nil {
		w.logger.Error("Invalid task payload",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	w.logger.Info("Processing paper task", logger.String("taskId", taskID))
	if err := w.handler(ctx, taskID); err != nil {
		w.logger.Error("Paper task failed", logger.String("taskId", taskID), logger.Error(err))
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	return nil
}

func (w *PaperWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}
