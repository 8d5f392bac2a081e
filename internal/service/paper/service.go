// Package paper drives an uploaded paper from conversion through LLM
// extraction to a human review decision, and owns the task status record
// along the way.
package paper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/paper-processor/internal/agent/converter"
	"github.com/feichai0017/paper-processor/internal/gateway"
	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/internal/store"
	"github.com/feichai0017/paper-processor/internal/utils/validator"
	"github.com/feichai0017/paper-processor/pkg/converters"
	"github.com/feichai0017/paper-processor/pkg/logger"
	"github.com/feichai0017/paper-processor/pkg/queue"
)

// 进度与步骤描述
const (
	progressUploaded   = 10
	progressConverting = 20
	progressExtracting = 40
	progressConcepts   = 60
	progressAnalyzing  = 80
	progressReview     = 100

	stepUploaded   = "upload complete"
	stepConverting = "converting document formats"
	stepExtracting = "extracting metadata"
	stepConcepts   = "matching custom concepts"
	stepAnalyzing  = "generating summary"
	stepReview     = "awaiting review"
	stepApproved   = "approved"
	stepRejected   = "rejected"
)

// Converter 格式转换
type Converter interface {
	Convert(ctx context.Context, path string) (*converter.Artifacts, error)
}

// Extractor 元数据与摘要抽取
type Extractor interface {
	Context(rawText, doclingPath string) string
	Extract(ctx context.Context, rawText, doclingPath string) (models.MetadataFields, error)
	Summarize(ctx context.Context, content string) (models.SummaryFields, error)
}

// ConceptMatcher 自定义概念匹配，单个槽位失败不影响其他槽位
type ConceptMatcher interface {
	Match(ctx context.Context, defs []models.CustomConceptDefinition, content string) (map[int]models.ConceptMatch, map[int]error)
}

// ConceptSource 当前配置的概念组合
type ConceptSource interface {
	List(ctx context.Context) ([]models.CustomConceptDefinition, error)
}

// FileStore 上传目录
type FileStore interface {
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Metrics 可选的指标上报
type Metrics interface {
	TaskFinished(status string)
	ObserveStage(stage string, d time.Duration)
	DispatchRejected()
	ConceptMatchFailed(n int)
	TasksCleaned(n int)
}

// Deps 服务依赖，Metrics 可以为空
type Deps struct {
	Tasks     store.TaskStore
	Files     FileStore
	Validator *validator.PaperValidator
	Converter Converter
	Extractor Extractor
	Matcher   ConceptMatcher
	Concepts  ConceptSource
	Gateway   gateway.Gateway
	Summaries *converters.SummaryConverter
	Metrics   Metrics
}

// Options 流水线行为开关
type Options struct {
	SummaryEnabled bool
	// Model 写入摘要记录的模型名
	Model string
}

type Service struct {
	Deps
	opts       Options
	dispatcher queue.Dispatcher
	locks      *keyedMutex
	logger     logger.Logger
	now        func() time.Time
}

func NewService(deps Deps, opts Options, log logger.Logger) *Service {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Summaries == nil {
		deps.Summaries = converters.NewSummaryConverter(opts.Model)
	}
	return &Service{
		Deps:   deps,
		opts:   opts,
		locks:  newKeyedMutex(),
		logger: log.Named("paper"),
		now:    time.Now,
	}
}

// SetDispatcher 调度器以 Run 为处理函数，因此在服务创建之后注入
func (s *Service) SetDispatcher(d queue.Dispatcher) {
	s.dispatcher = d
}

// Upload 保存文件、创建 UPLOADING 记录并提交流水线，不等待处理完成
func (s *Service) Upload(ctx context.Context, file io.ReadSeeker, fileName string, size int64) (*models.ProcessingTask, error) {
	if s.dispatcher == nil {
		return nil, errors.New("dispatcher not configured")
	}

	result, err := s.Validator.Validate(file, fileName, size)
	if err != nil {
		return nil, fmt.Errorf("failed to validate file: %w", err)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	taskID := uuid.New().String()
	key := "paper_" + uuid.New().String() + result.FileInfo.Extension
	path, err := s.Files.Store(ctx, file, key)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	task := &models.ProcessingTask{
		TaskID:      taskID,
		FileName:    fileName,
		FilePath:    path,
		ContentHash: result.FileInfo.Hash,
		Status:      models.StatusUploading,
		Progress:    progressUploaded,
		CurrentStep: stepUploaded,
	}
	store.Touch(task, s.now())
	if err := s.Tasks.Create(ctx, task); err != nil {
		s.removeFile(ctx, path)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.dispatcher.Submit(ctx, taskID); err != nil {
		s.removeFile(ctx, path)
		if derr := s.Tasks.Delete(ctx, taskID); derr != nil {
			s.logger.Warn("Failed to remove undispatched task", logger.String("task_id", taskID), logger.Error(derr))
		}
		if errors.Is(err, queue.ErrOverloaded) {
			s.Metrics.DispatchRejected()
			s.logger.Warn("Upload rejected, pipeline is at capacity", logger.String("filename", fileName))
			return nil, ErrOverloaded
		}
		return nil, fmt.Errorf("failed to dispatch task: %w", err)
	}

	s.logger.Info("Paper uploaded",
		logger.String("task_id", taskID),
		logger.String("filename", fileName),
		logger.String("path", path),
	)
	return task, nil
}

// GetStatus 轮询任务状态
func (s *Service) GetStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	task, err := s.Tasks.Get(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks 按创建时间倒序
func (s *Service) ListTasks(ctx context.Context, status models.TaskStatus) ([]*models.ProcessingTask, error) {
	tasks, err := s.Tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if status == "" {
		return tasks, nil
	}
	filtered := tasks[:0]
	for _, t := range tasks {
		if t.Status == status {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// mutate 在任务锁内读取、修改并写回最新记录
func (s *Service) mutate(ctx context.Context, taskID string, fn func(task *models.ProcessingTask) error) (*models.ProcessingTask, error) {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	task, err := s.GetStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := fn(task); err != nil {
		return nil, err
	}
	store.Touch(task, s.now())
	if err := s.Tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

func (s *Service) removeFile(ctx context.Context, path string) {
	if err := s.Files.Delete(ctx, path); err != nil {
		s.logger.Warn("Failed to delete file", logger.String("path", path), logger.Error(err))
	}
}

// removeArtifacts 删除上传文件及其转换产物，失败只记录日志
func (s *Service) removeArtifacts(ctx context.Context, path string) int {
	failed := 0
	for _, p := range converter.AllPaths(path) {
		if err := s.Files.Delete(ctx, p); err != nil {
			failed++
			s.logger.Warn("Failed to delete artifact", logger.String("path", p), logger.Error(err))
		}
	}
	return failed
}

type nopMetrics struct{}

func (nopMetrics) TaskFinished(string)                {}
func (nopMetrics) ObserveStage(string, time.Duration) {}
func (nopMetrics) DispatchRejected()                  {}
func (nopMetrics) ConceptMatchFailed(int)             {}
func (nopMetrics) TasksCleaned(int)                   {}
