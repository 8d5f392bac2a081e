package paper

import (
	"context"
	"fmt"
	"time"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// CleanupTasks 删除超过保留期的终态任务，失败任务的文件一并删除，已通过的文件保留
func (s *Service) CleanupTasks(ctx context.Context, retention time.Duration) (int, error) {
	tasks, err := s.Tasks.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	threshold := s.now().Add(-retention)
	deleted := 0
	for _, t := range tasks {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if !t.Status.Terminal() || !finishedAt(t).Before(threshold) {
			continue
		}
		if t.Status != models.StatusApproved {
			s.removeArtifacts(ctx, t.FilePath)
		}
		if err := s.Tasks.Delete(ctx, t.TaskID); err != nil {
			s.logger.Warn("Failed to delete expired task", logger.String("task_id", t.TaskID), logger.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.Metrics.TasksCleaned(deleted)
		s.logger.Info("Expired tasks cleaned", logger.Int("deleted", deleted))
	}
	return deleted, nil
}

func finishedAt(t *models.ProcessingTask) time.Time {
	if t.CompletedTime != nil {
		return *t.CompletedTime
	}
	return t.UpdatedTime
}
