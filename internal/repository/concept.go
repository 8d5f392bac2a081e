package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feichai0017/paper-processor/internal/models"
)

type ConceptRepository struct {
	db *gorm.DB
}

func NewConceptRepository(db *gorm.DB) *ConceptRepository {
	return &ConceptRepository{db: db}
}

// List 按槽位升序
func (r *ConceptRepository) List(ctx context.Context) ([]models.CustomConceptDefinition, error) {
	var defs []models.CustomConceptDefinition
	if err := r.db.WithContext(ctx).Order("display_order ASC").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("failed to list concepts: %w", err)
	}
	return defs, nil
}

func (r *ConceptRepository) GetBySlot(ctx context.Context, slot int) (*models.CustomConceptDefinition, error) {
	var def models.CustomConceptDefinition
	if err := r.db.WithContext(ctx).Where("display_order = ?", slot).First(&def).Error; err != nil {
		return nil, translate(err)
	}
	return &def, nil
}

// Upsert 以 display_order 为键插入或更新
func (r *ConceptRepository) Upsert(ctx context.Context, def *models.CustomConceptDefinition) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "display_order"}},
		DoUpdates: clause.AssignmentColumns([]string{"relationship_name", "concepts", "updated_at"}),
	}).Create(def).Error
	if err != nil {
		return fmt.Errorf("failed to save concept: %w", err)
	}
	return nil
}

func (r *ConceptRepository) DeleteBySlot(ctx context.Context, slot int) error {
	res := r.db.WithContext(ctx).Where("display_order = ?", slot).Delete(&models.CustomConceptDefinition{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete concept: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
