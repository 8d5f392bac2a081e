package gateway

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// ScriptGraphLoader 调用图谱加载脚本：--title <t> 增量，--full 全量
type ScriptGraphLoader struct {
	pythonBin string
	script    string
	timeout   time.Duration
	logger    logger.Logger
}

func NewScriptGraphLoader(pythonBin string, cfg config.GraphConfig, log logger.Logger) *ScriptGraphLoader {
	return &ScriptGraphLoader{
		pythonBin: pythonBin,
		script:    cfg.LoaderScript,
		timeout:   cfg.Timeout,
		logger:    log.Named("graph"),
	}
}

func (l *ScriptGraphLoader) Rebuild(ctx context.Context, title string) error {
	if l.script == "" {
		return errors.New("graph loader script not configured")
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	args := []string{"-u", l.script}
	if title == "" {
		args = append(args, "--full")
	} else {
		args = append(args, "--title", title)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, l.pythonBin, args...)
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("graph rebuild timed out after %s", l.timeout)
		}
		return fmt.Errorf("graph rebuild failed: %w\noutput: %s", err, strings.TrimSpace(string(output)))
	}

	l.logger.Info("Graph rebuilt",
		logger.String("title", title),
		logger.Bool("full", title == ""),
		logger.Duration("elapsed", time.Since(start)),
	)
	return nil
}
