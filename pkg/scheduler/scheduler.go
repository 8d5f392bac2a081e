package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/feichai0017/paper-processor/pkg/logger"
)

// Job 定时执行的任务
type Job func(ctx context.Context) error

// Scheduler 基于 cron 表达式运行后台任务，同一任务不会重叠执行
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  logger.Logger
}

func New(log logger.Logger) *Scheduler {
	log = log.Named("scheduler")
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: time.Hour,
		logger:  log,
	}
}

// Add 注册任务，spec 为标准五段 cron 表达式
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		s.logger.Info("Running scheduled job", logger.String("job", name))
		if err := job(ctx); err != nil {
			s.logger.Error("Scheduled job failed", logger.String("job", name), logger.Error(err))
			return
		}
		s.logger.Info("Scheduled job completed",
			logger.String("job", name),
			logger.Duration("elapsed", time.Since(start)),
		)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 等待运行中的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
