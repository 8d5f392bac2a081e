package converters

import (
	"encoding/json"
	"fmt"

	"github.com/feichai0017/paper-processor/internal/models"
)

// SummaryConverter 在任务上的摘要 JSON 与摘要表记录之间转换
type SummaryConverter struct {
	model string
}

func NewSummaryConverter(model string) *SummaryConverter {
	return &SummaryConverter{model: model}
}

// Encode 生成保存在任务上的摘要 JSON
func (c *SummaryConverter) Encode(fields models.SummaryFields) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	return string(data), nil
}

// Decode 空字符串得到零值
func (c *SummaryConverter) Decode(summaryJSON string) (models.SummaryFields, error) {
	var fields models.SummaryFields
	if summaryJSON == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(summaryJSON), &fields); err != nil {
		return fields, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return fields, nil
}

// ToRecord 构建摘要表记录，reviewer 为 "1" 表示人工审校版本
func (c *SummaryConverter) ToRecord(model, title, summaryJSON, reviewer string) (*models.ArticleSummary, error) {
	f, err := c.Decode(summaryJSON)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = c.model
	}
	return &models.ArticleSummary{
		Model:       model,
		Title:       title,
		Summary1:    f.Summary1,
		Summary2:    f.Summary2,
		Summary3:    f.Summary3,
		Summary4:    f.Summary4,
		Summary5:    f.Summary5,
		Summary6:    f.Summary6,
		Target:      f.Target,
		Algorithm1:  f.Algorithm1,
		Algorithm2:  f.Algorithm2,
		Algorithm3:  f.Algorithm3,
		Algorithm4:  f.Algorithm4,
		Environment: f.Environment,
		Tools:       f.Tools,
		Datas:       f.Datas,
		Standard:    f.Standard,
		Result:      f.Result,
		Future:      f.Future,
		Weekpoint:   f.Weekpoint,
		FullSummary: f.FullSummary,
		Keyword:     f.Keyword,
		IfTeacher:   reviewer,
	}, nil
}
