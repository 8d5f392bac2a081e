package paper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/feichai0017/paper-processor/internal/agent/concept"
	"github.com/feichai0017/paper-processor/internal/agent/extractor"
	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// stageError 记录失败所在阶段
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// failureWriteTimeout 记录失败时使用的独立超时
const failureWriteTimeout = 10 * time.Second

var errInterrupted = errors.New("pipeline interrupted before completion")

// Run 执行单个任务的全部阶段，阶段失败或 panic 都会写入 FAILED 而不是返回错误
func (s *Service) Run(ctx context.Context, taskID string) (err error) {
	log := s.logger.With(logger.String("task_id", taskID))

	task, err := s.GetStatus(ctx, taskID)
	if err != nil {
		return err
	}
	switch task.Status {
	case models.StatusUploading:
	case models.StatusConverting, models.StatusExtracting, models.StatusAnalyzing:
		// 上一次执行在阶段中途退出（超时或 worker 重启），重新投递时不会再有人推进它
		log.Warn("Task was interrupted, marking failed", logger.String("status", string(task.Status)))
		return s.recordFailure(ctx, taskID, "pipeline", fmt.Errorf("%w (was %s)", errInterrupted, task.Status), log)
	default:
		log.Warn("Task already started, skipping", logger.String("status", string(task.Status)))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Pipeline panicked", logger.Any("panic", r), logger.String("stack", string(debug.Stack())))
			err = s.recordFailure(ctx, taskID, "pipeline", fmt.Errorf("panic: %v", r), log)
		}
	}()

	start := time.Now()
	if err := s.runStages(ctx, task.FilePath, taskID, log); err != nil {
		var se *stageError
		stage := "pipeline"
		if errors.As(err, &se) {
			stage = se.stage
		}
		log.Error("Pipeline failed", logger.String("stage", stage), logger.Error(err))
		return s.recordFailure(ctx, taskID, stage, err, log)
	}

	s.Metrics.TaskFinished(string(models.StatusPendingApproval))
	log.Info("Pipeline finished, awaiting review", logger.Duration("elapsed", time.Since(start)))
	return nil
}

// recordFailure 调用方的 ctx 可能已被取消，失败状态仍需写入
func (s *Service) recordFailure(ctx context.Context, taskID, stage string, cause error, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if err := s.fail(ctx, taskID, stage, cause); err != nil {
		log.Error("Failed to record task failure", logger.Error(err))
		return err
	}
	s.Metrics.TaskFinished(string(models.StatusFailed))
	return nil
}

// Resume 重新提交未开始的任务，执行中途退出的任务标记为 FAILED
func (s *Service) Resume(ctx context.Context) (resubmitted, failed int, err error) {
	tasks, err := s.Tasks.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	for _, t := range tasks {
		log := s.logger.With(logger.String("task_id", t.TaskID))
		switch t.Status {
		case models.StatusUploading:
			if err := s.dispatcher.Submit(ctx, t.TaskID); err != nil {
				log.Warn("Failed to resubmit task", logger.Error(err))
				continue
			}
			resubmitted++
		case models.StatusConverting, models.StatusExtracting, models.StatusAnalyzing:
			cause := fmt.Errorf("%w (was %s)", errInterrupted, t.Status)
			if s.recordFailure(ctx, t.TaskID, "pipeline", cause, log) == nil {
				failed++
			}
		}
	}

	if resubmitted > 0 || failed > 0 {
		s.logger.Info("Resumed unfinished tasks", logger.Int("resubmitted", resubmitted), logger.Int("failed", failed))
	}
	return resubmitted, failed, nil
}

func (s *Service) runStages(ctx context.Context, path, taskID string, log logger.Logger) error {
	// CONVERTING
	if err := s.advance(ctx, taskID, models.StatusConverting, progressConverting, stepConverting, nil); err != nil {
		return err
	}
	stageStart := time.Now()
	artifacts, err := s.Converter.Convert(ctx, path)
	s.Metrics.ObserveStage("convert", time.Since(stageStart))
	if err != nil {
		return &stageError{stage: "convert", err: err}
	}

	// EXTRACTING
	if err := s.advance(ctx, taskID, models.StatusExtracting, progressExtracting, stepExtracting, nil); err != nil {
		return err
	}
	stageStart = time.Now()
	meta, err := s.Extractor.Extract(ctx, artifacts.Text, artifacts.DoclingJSON)
	s.Metrics.ObserveStage("extract", time.Since(stageStart))
	if err != nil {
		return &stageError{stage: "extract", err: err}
	}
	if err := s.advance(ctx, taskID, models.StatusExtracting, progressConcepts, stepConcepts, func(t *models.ProcessingTask) {
		t.ApplyMetadata(meta)
	}); err != nil {
		return err
	}

	content := s.Extractor.Context(artifacts.Text, artifacts.DoclingJSON)
	slots := s.matchConcepts(ctx, content, log)

	// ANALYZING
	summary := extractor.SummaryFromAbstract(meta.Summary)
	if s.opts.SummaryEnabled {
		if err := s.advance(ctx, taskID, models.StatusAnalyzing, progressAnalyzing, stepAnalyzing, func(t *models.ProcessingTask) {
			applySlots(t, slots)
		}); err != nil {
			return err
		}
		stageStart = time.Now()
		summary, err = s.Extractor.Summarize(ctx, content)
		s.Metrics.ObserveStage("summarize", time.Since(stageStart))
		if err != nil {
			return &stageError{stage: "summarize", err: err}
		}
	}
	summaryJSON, err := s.Summaries.Encode(summary)
	if err != nil {
		return &stageError{stage: "summarize", err: err}
	}

	return s.advance(ctx, taskID, models.StatusPendingApproval, progressReview, stepReview, func(t *models.ProcessingTask) {
		applySlots(t, slots)
		t.ExtractedSummary = summary.FullSummary
		t.ExtractedSummaryJSON = summaryJSON
	})
}

// matchConcepts 失败只影响对应槽位
func (s *Service) matchConcepts(ctx context.Context, content string, log logger.Logger) map[int]string {
	defs, err := s.Concepts.List(ctx)
	if err != nil {
		log.Warn("Failed to load concept definitions, skipping concept matching", logger.Error(err))
		return nil
	}
	if len(defs) == 0 {
		return nil
	}

	stageStart := time.Now()
	matches, failures := s.Matcher.Match(ctx, defs, content)
	s.Metrics.ObserveStage("concepts", time.Since(stageStart))
	if len(failures) > 0 {
		s.Metrics.ConceptMatchFailed(len(failures))
	}

	slots := make(map[int]string, len(matches))
	for slot, m := range matches {
		encoded, err := concept.Encode(m)
		if err != nil {
			log.Warn("Failed to encode concept match", logger.Int("slot", slot), logger.Error(err))
			continue
		}
		slots[slot] = encoded
	}
	return slots
}

func applySlots(t *models.ProcessingTask, slots map[int]string) {
	for slot, v := range slots {
		t.SetConceptSlot(slot, v)
	}
}

// advance 写入下一阶段，进度只增不减
func (s *Service) advance(ctx context.Context, taskID string, status models.TaskStatus, progress int, step string, apply func(*models.ProcessingTask)) error {
	_, err := s.mutate(ctx, taskID, func(t *models.ProcessingTask) error {
		if t.Status.Terminal() {
			return fmt.Errorf("%w: task is %s", ErrStateConflict, t.Status)
		}
		t.Status = status
		if progress > t.Progress {
			t.Progress = progress
		}
		t.CurrentStep = step
		if apply != nil {
			apply(t)
		}
		return nil
	})
	return err
}

func (s *Service) fail(ctx context.Context, taskID, stage string, cause error) error {
	_, err := s.mutate(ctx, taskID, func(t *models.ProcessingTask) error {
		if t.Status.Terminal() {
			return fmt.Errorf("%w: task is %s", ErrStateConflict, t.Status)
		}
		t.Status = models.StatusFailed
		t.Progress = 0
		t.ErrorMessage = cause.Error()
		t.CurrentStep = "failed at " + stage
		return nil
	})
	return err
}
