package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/feichai0017/paper-processor/pkg/logger"
)

// PoolDispatcher 进程内执行：固定数量的 worker，在途任务超过上限时拒绝
type PoolDispatcher struct {
	pool     *ants.Pool
	handler  Handler
	queue    chan string
	inFlight atomic.Int64
	max      int64
	logger   logger.Logger

	drainTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewPoolDispatcher(handler Handler, workers, maxInFlight int, log logger.Logger) (*PoolDispatcher, error) {
	if workers < 1 || maxInFlight < workers {
		return nil, fmt.Errorf("invalid pool size: workers=%d maxInFlight=%d", workers, maxInFlight)
	}
	log = log.Named("dispatcher")

	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(r any) {
		log.Error("Pipeline worker panicked", logger.Any("panic", r))
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &PoolDispatcher{
		pool:    pool,
		handler: handler,
		queue:   make(chan string, maxInFlight),
		max:     int64(maxInFlight),
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,

		drainTimeout: 30 * time.Second,
	}

	d.wg.Add(1)
	go d.feed()
	return d, nil
}

// Submit 不阻塞调用方
func (d *PoolDispatcher) Submit(ctx context.Context, taskID string) error {
	if d.ctx.Err() != nil {
		return errors.New("dispatcher closed")
	}
	if d.inFlight.Add(1) > d.max {
		d.inFlight.Add(-1)
		return ErrOverloaded
	}
	d.queue <- taskID
	return nil
}

// feed 把排队的任务交给 ants，worker 全忙时在这里等待
func (d *PoolDispatcher) feed() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case taskID := <-d.queue:
			err := d.pool.Submit(func() {
				defer d.inFlight.Add(-1)
				d.run(taskID)
			})
			if err != nil {
				d.inFlight.Add(-1)
				d.logger.Error("Failed to schedule task", logger.String("taskId", taskID), logger.Error(err))
			}
		}
	}
}

// run 流水线没有取消通道，使用独立的 context
func (d *PoolDispatcher) run(taskID string) {
	if err := d.handler(context.Background(), taskID); err != nil {
		d.logger.Error("Pipeline run returned error", logger.String("taskId", taskID), logger.Error(err))
	}
}

func (d *PoolDispatcher) InFlight(ctx context.Context) (int, error) {
	return int(d.inFlight.Load()), nil
}

// Close 停止接收任务，最多等待 drainTimeout 让执行中的任务结束，排队中的任务被丢弃
func (d *PoolDispatcher) Close() error {
	var err error
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
		if dropped := len(d.queue); dropped > 0 {
			d.logger.Warn("Dropping queued tasks on shutdown", logger.Int("count", dropped))
		}
		err = d.pool.ReleaseTimeout(d.drainTimeout)
	})
	return err
}
