package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/feichai0017/paper-processor/internal/models"
)

type ArticleRepository struct {
	db *gorm.DB
}

func NewArticleRepository(db *gorm.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func (r *ArticleRepository) SaveArticle(ctx context.Context, article *models.ArticleRecord) error {
	if err := r.db.WithContext(ctx).Create(article).Error; err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

// FindByTitle 同名时返回最新的一条
func (r *ArticleRepository) FindByTitle(ctx context.Context, title string) (*models.ArticleRecord, error) {
	var article models.ArticleRecord
	err := r.db.WithContext(ctx).Where("title = ?", title).Order("id DESC").First(&article).Error
	if err != nil {
		return nil, translate(err)
	}
	return &article, nil
}

func (r *ArticleRepository) SaveSummary(ctx context.Context, summary *models.ArticleSummary) error {
	if err := r.db.WithContext(ctx).Create(summary).Error; err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// SummariesByTitle 按保存顺序返回
func (r *ArticleRepository) SummariesByTitle(ctx context.Context, title string) ([]models.ArticleSummary, error) {
	var summaries []models.ArticleSummary
	err := r.db.WithContext(ctx).Where("title = ?", title).Order("id ASC").Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	return summaries, nil
}
