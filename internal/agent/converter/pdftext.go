package converter

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/paper-processor/pkg/logger"
)

// PDFTextConverter 内置的纯文本提取，外部脚本没有产出时使用
type PDFTextConverter struct {
	maxWorkers int
	logger     logger.Logger
}

func NewPDFTextConverter(log logger.Logger) *PDFTextConverter {
	return &PDFTextConverter{
		maxWorkers: 4,
		logger:     log.Named("pdftext"),
	}
}

func (p *PDFTextConverter) Name() string {
	return "pdftext"
}

// Convert 解析库遇到损坏的引用会 panic，每个 goroutine 都要自己恢复
func (p *PDFTextConverter) Convert(ctx context.Context, input, output string) (err error) {
	defer recoverMalformed(&err)

	f, reader, err := pdf.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, numPages)

	// 并行提取每一页，结果按页码写回
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() (err error) {
			defer recoverMalformed(&err)
			if err := ctx.Err(); err != nil {
				return err
			}
			page := reader.Page(pageNum)
			if page.V.IsNull() {
				return nil
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
			}
			pages[pageNum-1] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	text := strings.TrimSpace(strings.Join(pages, "\n"))
	if text == "" {
		return fmt.Errorf("pdf has no text layer: %s", input)
	}
	if err := os.WriteFile(output, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write text: %w", err)
	}

	p.logger.Debug("Extracted pdf text",
		logger.String("input", input),
		logger.Int("pages", numPages),
		logger.Int("chars", len(text)),
	)
	return nil
}

func recoverMalformed(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrMalformedPDF, r)
	}
}
