package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// Orchestrator 依次执行各转换步骤，除文本外的步骤失败都不中断
type Orchestrator struct {
	caj2pdf  Converter
	pdf2docx Converter
	pdf2txt  Converter
	docling  Converter // nil 表示关闭
	fallback Converter // nil 表示关闭
	logger   logger.Logger
}

// Option 替换默认转换器，主要用于测试
type Option func(*Orchestrator)

func WithCaj2Pdf(c Converter) Option  { return func(o *Orchestrator) { o.caj2pdf = c } }
func WithPdf2Docx(c Converter) Option { return func(o *Orchestrator) { o.pdf2docx = c } }
func WithPdf2Txt(c Converter) Option  { return func(o *Orchestrator) { o.pdf2txt = c } }
func WithDocling(c Converter) Option  { return func(o *Orchestrator) { o.docling = c } }
func WithFallback(c Converter) Option { return func(o *Orchestrator) { o.fallback = c } }

func NewOrchestrator(cfg config.ConverterConfig, log logger.Logger, opts ...Option) *Orchestrator {
	log = log.Named("converter")
	o := &Orchestrator{
		caj2pdf:  NewCaj2Pdf(cfg, log),
		pdf2docx: NewPdf2Docx(cfg, log),
		pdf2txt:  NewPdf2Txt(cfg, log),
		logger:   log,
	}
	if cfg.DoclingEnabled {
		o.docling = NewDocling(cfg, log)
	}
	if cfg.PDFTextFallback {
		o.fallback = NewPDFTextConverter(log)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Convert 生成兄弟文件并读取文本，文本缺失或为空时返回 ErrNoExtractableText
func (o *Orchestrator) Convert(ctx context.Context, path string) (*Artifacts, error) {
	a := Siblings(path)
	log := o.logger.With(logger.String("file", filepath.Base(path)))

	if strings.EqualFold(filepath.Ext(path), ".caj") {
		// 不是每个上传都是 CAJ，失败忽略
		if err := o.caj2pdf.Convert(ctx, a.Original, a.PDF); err != nil {
			log.Warn("CAJ to PDF conversion failed", logger.Error(err))
		}
	}

	if err := o.pdf2docx.Convert(ctx, a.PDF, a.DOCX); err != nil {
		log.Warn("PDF to DOCX conversion failed", logger.Error(err))
	}

	if err := o.pdf2txt.Convert(ctx, a.PDF, a.TXT); err != nil {
		log.Warn("PDF to text conversion failed", logger.Error(err))
	}
	if o.fallback != nil && !nonEmpty(a.TXT) && exists(a.PDF) {
		if err := o.fallback.Convert(ctx, a.PDF, a.TXT); err != nil {
			log.Warn("Built-in PDF text extraction failed", logger.Error(err))
		}
	}

	if o.docling != nil && exists(a.PDF) {
		out := DoclingPath(path)
		if err := o.docling.Convert(ctx, a.PDF, out); err != nil {
			log.Warn("Structured extraction failed, falling back to raw text", logger.Error(err))
		} else {
			a.DoclingJSON = out
		}
	}

	data, err := os.ReadFile(a.TXT)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoExtractableText, filepath.Base(a.TXT))
	}
	a.Text = string(data)

	log.Info("Conversion completed",
		logger.Int("text_chars", len(a.Text)),
		logger.Bool("structured", a.DoclingJSON != ""),
	)
	return &a, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
