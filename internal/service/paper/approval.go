package paper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/feichai0017/paper-processor/internal/agent/converter"
	"github.com/feichai0017/paper-processor/internal/agent/extractor"
	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// 摘要记录的审校标记
const (
	reviewerModel = "0"
	reviewerHuman = "1"
)

// Edits 审核时修改的字段，nil 表示沿用抽取结果
type Edits struct {
	Title       *string `json:"title,omitempty"`
	Authors     *string `json:"authors,omitempty"`
	Institution *string `json:"institution,omitempty"`
	Year        *string `json:"year,omitempty"`
	Source      *string `json:"source,omitempty"`
	Keywords    *string `json:"keywords,omitempty"`
	Doi         *string `json:"doi,omitempty"`
	Abstract    *string `json:"abstract,omitempty"`
	// SummaryJSON 人工修改后的完整摘要
	SummaryJSON *string `json:"summaryJson,omitempty"`
}

func (e Edits) apply(t *models.ProcessingTask) {
	set := func(dst *string, v *string) {
		if v == nil {
			return
		}
		if s := strings.TrimSpace(*v); s != "" {
			*dst = s
		} else {
			*dst = models.NotExtracted
		}
	}
	set(&t.ExtractedTitle, e.Title)
	set(&t.ExtractedAuthors, e.Authors)
	set(&t.ExtractedInstitution, e.Institution)
	set(&t.ExtractedYear, e.Year)
	set(&t.ExtractedSource, e.Source)
	set(&t.ExtractedKeywords, e.Keywords)
	set(&t.ExtractedDoi, e.Doi)
	set(&t.ExtractedAbstract, e.Abstract)
	if e.SummaryJSON != nil {
		t.ExtractedSummaryJSON = *e.SummaryJSON
	}
}

// Approve 写入关系库、摘要记录并触发图谱重建，任一步失败任务保持 PENDING_APPROVAL
func (s *Service) Approve(ctx context.Context, taskID string, edits Edits) (*models.ProcessingTask, error) {
	log := s.logger.With(logger.String("task_id", taskID))

	task, err := s.mutate(ctx, taskID, func(t *models.ProcessingTask) error {
		if t.Status != models.StatusPendingApproval {
			return fmt.Errorf("%w: cannot approve task in %s", ErrStateConflict, t.Status)
		}

		final := *t
		edits.apply(&final)
		if err := s.persist(ctx, &final, edits.SummaryJSON != nil); err != nil {
			log.Error("Failed to persist approved paper", logger.Error(err))
			return err
		}

		*t = final
		now := s.now()
		t.Status = models.StatusApproved
		t.Progress = progressReview
		t.CurrentStep = stepApproved
		t.CompletedTime = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.TaskFinished(string(models.StatusApproved))
	log.Info("Paper approved", logger.String("title", task.ExtractedTitle))
	return task, nil
}

func (s *Service) persist(ctx context.Context, t *models.ProcessingTask, humanSummary bool) error {
	article := ArticleFromTask(t)
	if err := s.Gateway.SaveArticle(ctx, article); err != nil {
		return persistenceErr(err)
	}

	reviewer := reviewerModel
	if humanSummary {
		reviewer = reviewerHuman
	}
	summaryJSON := t.ExtractedSummaryJSON
	if summaryJSON == "" {
		encoded, err := s.Summaries.Encode(summaryFallback(t))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		summaryJSON = encoded
	}
	if err := s.Gateway.SaveSummary(ctx, s.opts.Model, article.Title, summaryJSON, reviewer); err != nil {
		return persistenceErr(err)
	}
	if err := s.Gateway.RebuildGraph(ctx, article.Title); err != nil {
		return persistenceErr(err)
	}
	return nil
}

func persistenceErr(err error) error {
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// ArticleFromTask 任务字段与文件路径复制到永久记录
func ArticleFromTask(t *models.ProcessingTask) *models.ArticleRecord {
	files := converter.Siblings(t.FilePath)
	return &models.ArticleRecord{
		Title:          t.ExtractedTitle,
		Author:         t.ExtractedAuthors,
		Organ:          t.ExtractedInstitution,
		Year:           t.ExtractedYear,
		Source:         t.ExtractedSource,
		Keyword:        t.ExtractedKeywords,
		Doi:            t.ExtractedDoi,
		Summary:        t.ExtractedAbstract,
		PathA:          files.Original,
		PathPDF:        files.PDF,
		PathDOCX:       files.DOCX,
		PathTXT:        files.TXT,
		CustomConcept1: t.ExtractedCustomConcept1,
		CustomConcept2: t.ExtractedCustomConcept2,
		CustomConcept3: t.ExtractedCustomConcept3,
	}
}

func summaryFallback(t *models.ProcessingTask) models.SummaryFields {
	abstract := t.ExtractedSummary
	if abstract == "" {
		abstract = t.ExtractedAbstract
	}
	return extractor.SummaryFromAbstract(abstract)
}

// Reject 只在 PENDING_APPROVAL 时调用，文件删除失败不影响结果；FAILED 任务的文件由清理任务删除
func (s *Service) Reject(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	task, err := s.mutate(ctx, taskID, func(t *models.ProcessingTask) error {
		if t.Status != models.StatusPendingApproval {
			return fmt.Errorf("%w: cannot reject task in %s", ErrStateConflict, t.Status)
		}
		if failed := s.removeArtifacts(ctx, t.FilePath); failed > 0 {
			s.logger.Warn("Some files were not deleted on reject",
				logger.String("task_id", taskID),
				logger.Int("failed", failed),
			)
		}

		now := s.now()
		t.Status = models.StatusRejected
		t.CurrentStep = stepRejected
		t.CompletedTime = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.TaskFinished(string(models.StatusRejected))
	s.logger.Info("Paper rejected", logger.String("task_id", taskID))
	return task, nil
}
