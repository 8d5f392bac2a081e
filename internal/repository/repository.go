// Package repository holds the gorm-backed relational store: approved
// articles, their generated summaries and the custom concept definitions.
package repository

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Open 连接 postgres，按配置执行自动迁移
func Open(cfg config.PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ArticleRecord{}, &models.ArticleSummary{}, &models.CustomConceptDefinition{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
