// Package extractor turns converted paper text into bibliographic metadata
// and a structured summary through the LLM client.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feichai0017/paper-processor/internal/agent/llm"
	"github.com/feichai0017/paper-processor/internal/agent/parser"
	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// Engine 每个阶段只调用一次 LLM，不重试
type Engine struct {
	client llm.Client
	budget int
	logger logger.Logger
}

func NewEngine(client llm.Client, budget int, log logger.Logger) *Engine {
	return &Engine{
		client: client,
		budget: budget,
		logger: log.Named("extractor"),
	}
}

// Context 构建送入 LLM 的上下文
func (e *Engine) Context(rawText, doclingPath string) string {
	return BuildContext(rawText, doclingPath, e.budget)
}

// Extract 抽取元数据，缺失字段填充占位值
func (e *Engine) Extract(ctx context.Context, rawText, doclingPath string) (models.MetadataFields, error) {
	content := e.Context(rawText, doclingPath)
	e.logger.Info("Extracting metadata",
		logger.Int("context_chars", len([]rune(content))),
		logger.Bool("structured", doclingPath != ""),
	)

	var fields models.MetadataFields
	if err := e.generate(ctx, MetadataPrompt(content), metadataFields, &fields); err != nil {
		return models.MetadataFields{}, err
	}
	return fields, nil
}

// Summarize 生成摘要字段
func (e *Engine) Summarize(ctx context.Context, content string) (models.SummaryFields, error) {
	var fields models.SummaryFields
	if err := e.generate(ctx, SummaryPrompt(content), summaryFields, &fields); err != nil {
		return models.SummaryFields{}, err
	}
	return fields, nil
}

func (e *Engine) generate(ctx context.Context, prompt string, keys []promptField, out any) error {
	response, err := e.client.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	obj := parser.Parse(response)
	if _, ok := obj.Raw(); ok || len(obj) == 0 {
		e.logger.Warn("LLM response is not a JSON object, using placeholders",
			logger.Int("response_chars", len(response)),
		)
	}

	values := make(map[string]string, len(keys))
	for _, k := range keys {
		values[k.key] = obj.StringOr(k.key, models.NotExtracted)
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return json.Unmarshal(data, out)
}

// SummaryFromAbstract 关闭摘要阶段时用摘要原文填充
func SummaryFromAbstract(abstract string) models.SummaryFields {
	fields := placeholderSummary()
	if abstract == "" {
		abstract = models.NotExtracted
	}
	fields.Summary1 = abstract
	fields.FullSummary = abstract
	return fields
}

func placeholderSummary() models.SummaryFields {
	n := models.NotExtracted
	return models.SummaryFields{
		Summary1: n, Summary2: n, Summary3: n, Summary4: n, Summary5: n, Summary6: n,
		Target: n, Algorithm1: n, Algorithm2: n, Algorithm3: n, Algorithm4: n,
		Environment: n, Tools: n, Datas: n, Standard: n, Result: n, Future: n, Weekpoint: n,
		Keyword: n, FullSummary: n,
	}
}
