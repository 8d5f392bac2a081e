package app

import (
	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// NewLogger 按配置创建进程日志，outputs 为空时沿用配置
func NewLogger(cfg config.LogConfig, outputs ...string) (logger.Logger, error) {
	paths := cfg.OutputPaths
	if len(outputs) > 0 {
		paths = outputs
	}
	return logger.NewLogger(
		logger.WithLevel(cfg.Level),
		logger.WithEncoding(cfg.Encoding),
		logger.WithOutputPaths(paths),
		logger.WithDevelopment(cfg.Development),
	)
}
