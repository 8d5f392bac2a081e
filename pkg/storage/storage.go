package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/pkg/logger"
	"github.com/feichai0017/paper-processor/pkg/storage/minio"
	"github.com/feichai0017/paper-processor/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeNone  StorageType = "none"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage 接口定义
type Storage interface {
	// Store 存储文件，返回存储键
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get 获取文件
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除文件
	Delete(ctx context.Context, key string) error
	// CleanupBefore 清理过期文件，返回删除数量
	CleanupBefore(ctx context.Context, threshold time.Time) (int, error)
}

// NewArchive 创建归档存储，未配置时返回 nil
func NewArchive(ctx context.Context, cfg config.ArchiveConfig, log logger.Logger) (Storage, error) {
	switch StorageType(strings.ToLower(cfg.Type)) {
	case "", StorageTypeNone:
		return nil, nil
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
