package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/paper-processor/pkg/logger"
)

func TestScheduler_RunsJob(t *testing.T) {
	log := logger.NewTestLogger()
	s := New(log)
	s.cron = newSecondsCron()

	var runs atomic.Int32
	require.NoError(t, s.Add("ok", "* * * * * *", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("bad", "* * * * * *", func(context.Context) error {
		return errors.New("disk full")
	}))

	s.Start()
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool { return log.HasMessage("ERROR", "Scheduled job failed") }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New(logger.NewTestLogger())
	err := s.Add("cleanup", "not a cron", func(context.Context) error { return nil })
	assert.Error(t, err)
}

// newSecondsCron 测试中使用秒级精度
func newSecondsCron() *cron.Cron {
	return cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
}
