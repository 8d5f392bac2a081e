// Package gateway is the persistence boundary used when a task is approved:
// the relational article record, the summary history and the graph store.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/converters"
	"github.com/feichai0017/paper-processor/pkg/logger"
	"github.com/feichai0017/paper-processor/pkg/storage"
)

// ErrPersistence 关系库或图谱写入失败
var ErrPersistence = errors.New("persistence failed")

// Gateway 审核通过时调用的持久化边界
type Gateway interface {
	SaveArticle(ctx context.Context, article *models.ArticleRecord) error
	SaveSummary(ctx context.Context, model, title, summaryJSON, reviewer string) error
	RebuildGraph(ctx context.Context, title string) error
}

// ArticleStore 关系库
type ArticleStore interface {
	SaveArticle(ctx context.Context, article *models.ArticleRecord) error
	SaveSummary(ctx context.Context, summary *models.ArticleSummary) error
}

// GraphLoader 空标题表示全量重建
type GraphLoader interface {
	Rebuild(ctx context.Context, title string) error
}

type gateway struct {
	articles  ArticleStore
	graph     GraphLoader
	archive   storage.Storage
	summaries *converters.SummaryConverter
	logger    logger.Logger
}

// New archive 可以为 nil
func New(articles ArticleStore, graph GraphLoader, archive storage.Storage, summaries *converters.SummaryConverter, log logger.Logger) Gateway {
	return &gateway{
		articles:  articles,
		graph:     graph,
		archive:   archive,
		summaries: summaries,
		logger:    log.Named("gateway"),
	}
}

func (g *gateway) SaveArticle(ctx context.Context, article *models.ArticleRecord) error {
	if err := g.articles.SaveArticle(ctx, article); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	g.logger.Info("Article saved", logger.String("title", article.Title), logger.Int("id", int(article.ID)))

	if g.archive != nil {
		g.archiveFiles(ctx, article)
	}
	return nil
}

// archiveFiles 归档失败只记录日志
func (g *gateway) archiveFiles(ctx context.Context, article *models.ArticleRecord) {
	seen := make(map[string]bool)
	for _, path := range []string{article.PathA, article.PathPDF, article.PathDOCX, article.PathTXT} {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true

		f, err := os.Open(path)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("articles/%d/%s", article.ID, filepath.Base(path))
		if _, err := g.archive.Store(ctx, f, key); err != nil {
			g.logger.Warn("Failed to archive file", logger.String("path", path), logger.Error(err))
		}
		f.Close()
	}
}

func (g *gateway) SaveSummary(ctx context.Context, model, title, summaryJSON, reviewer string) error {
	record, err := g.summaries.ToRecord(model, title, summaryJSON, reviewer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := g.articles.SaveSummary(ctx, record); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (g *gateway) RebuildGraph(ctx context.Context, title string) error {
	if err := g.graph.Rebuild(ctx, title); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
