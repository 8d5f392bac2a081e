package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// ArgsFunc 根据输入输出路径生成命令行参数
type ArgsFunc func(input, output string) []string

// ScriptConverter 调用外部程序完成转换，非零退出或超时视为没有产出
type ScriptConverter struct {
	name    string
	command string
	args    ArgsFunc
	timeout time.Duration
	logger  logger.Logger
}

func NewScriptConverter(name, command string, args ArgsFunc, timeout time.Duration, log logger.Logger) *ScriptConverter {
	return &ScriptConverter{
		name:    name,
		command: command,
		args:    args,
		timeout: timeout,
		logger:  log.Named(name),
	}
}

func (s *ScriptConverter) Name() string {
	return s.name
}

func (s *ScriptConverter) Convert(ctx context.Context, input, output string) error {
	if s.command == "" {
		return fmt.Errorf("%s: %w", s.name, ErrNotConfigured)
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("%s: input not found: %w", s.name, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := s.args(input, output)
	cmd := exec.CommandContext(ctx, s.command, args...)
	// 子进程继承了输出管道时，超时后不再无限等待
	cmd.WaitDelay = time.Second
	start := time.Now()
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", s.name, s.timeout)
		}
		return fmt.Errorf("%s failed: %w\noutput: %s", s.name, err, tail(out, 2000))
	}

	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("%s produced no output: %w", s.name, err)
	}

	s.logger.Debug("Converter finished",
		logger.String("input", input),
		logger.String("output", output),
		logger.Duration("elapsed", time.Since(start)),
		logger.String("output_tail", tail(out, 500)),
	)
	return nil
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

// NewCaj2Pdf caj2pdf 命令行：caj2pdf convert in.caj -o out.pdf
func NewCaj2Pdf(cfg config.ConverterConfig, log logger.Logger) *ScriptConverter {
	return NewScriptConverter("caj2pdf", cfg.Caj2PdfCommand, func(in, out string) []string {
		return []string{"convert", in, "-o", out}
	}, cfg.Caj2PdfTimeout, log)
}

func NewPdf2Docx(cfg config.ConverterConfig, log logger.Logger) *ScriptConverter {
	return NewScriptConverter("pdf2docx", pythonCommand(cfg, cfg.Pdf2DocxScript), func(in, out string) []string {
		return []string{"-u", cfg.Pdf2DocxScript, "--input_pdf", in, "--output_docx", out}
	}, cfg.Pdf2DocxTimeout, log)
}

func NewPdf2Txt(cfg config.ConverterConfig, log logger.Logger) *ScriptConverter {
	return NewScriptConverter("pdf2txt", pythonCommand(cfg, cfg.Pdf2TxtScript), func(in, out string) []string {
		return []string{"-u", cfg.Pdf2TxtScript, "--input_pdf", in, "--output_txt", out}
	}, cfg.Pdf2TxtTimeout, log)
}

func NewDocling(cfg config.ConverterConfig, log logger.Logger) *ScriptConverter {
	return NewScriptConverter("docling", pythonCommand(cfg, cfg.DoclingScript), func(in, out string) []string {
		return []string{"-u", cfg.DoclingScript, "--input_pdf", in, "--output_json", out}
	}, cfg.DoclingTimeout, log)
}

// pythonCommand 脚本未配置时视为转换器不可用
func pythonCommand(cfg config.ConverterConfig, script string) string {
	if script == "" {
		return ""
	}
	return cfg.PythonBin
}
