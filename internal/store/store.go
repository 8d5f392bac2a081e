// Package store defines the task status store: the durable record of
// pipeline progress keyed by task id.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/feichai0017/paper-processor/internal/models"
)

var (
	ErrNotFound = errors.New("task not found")
	ErrExists   = errors.New("task already exists")
)

// KeyPrefix 任务状态键前缀
const KeyPrefix = "task_status:"

// TaskStore 按 taskId 主键读写，单行原地更新
type TaskStore interface {
	// Create 写入初始记录，已存在时返回 ErrExists
	Create(ctx context.Context, task *models.ProcessingTask) error
	// Update 覆盖已存在的记录并刷新 UpdatedTime，不存在时返回 ErrNotFound
	Update(ctx context.Context, task *models.ProcessingTask) error
	Get(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	Delete(ctx context.Context, taskID string) error
	// List 按创建时间倒序返回全部记录
	List(ctx context.Context) ([]*models.ProcessingTask, error)
	Close() error
}

// Key 任务记录的存储键
func Key(taskID string) string {
	return KeyPrefix + taskID
}

// Touch 写入前设置时间戳
func Touch(task *models.ProcessingTask, now time.Time) {
	if task.CreatedTime.IsZero() {
		task.CreatedTime = now
	}
	task.UpdatedTime = now
}

// Expiry 只有终态任务才过期，未结束的任务必须保留到审核或清理
func Expiry(task *models.ProcessingTask, ttl time.Duration) time.Duration {
	if ttl <= 0 || !task.Status.Terminal() {
		return 0
	}
	return ttl
}

// SortNewestFirst List 的统一排序
func SortNewestFirst(tasks []*models.ProcessingTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedTime.After(tasks[j].CreatedTime)
	})
}
