package concept

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/feichai0017/paper-processor/internal/agent/extractor"
	"github.com/feichai0017/paper-processor/internal/agent/llm"
	"github.com/feichai0017/paper-processor/internal/agent/parser"
	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// ErrConceptMatch 单个概念组合匹配失败，只影响对应槽位
var ErrConceptMatch = errors.New("concept match failed")

// Matcher 每个概念组合一次有界的 LLM 查询
type Matcher struct {
	client llm.Client
	budget int
	logger logger.Logger
}

func NewMatcher(client llm.Client, budget int, log logger.Logger) *Matcher {
	return &Matcher{
		client: client,
		budget: budget,
		logger: log.Named("concept"),
	}
}

// Match 返回槽位到匹配结果的映射，失败的槽位记录在 failed 中且不出现在结果里
func (m *Matcher) Match(ctx context.Context, defs []models.CustomConceptDefinition, content string) (map[int]models.ConceptMatch, map[int]error) {
	matches := make(map[int]models.ConceptMatch)
	failed := make(map[int]error)
	if len(defs) == 0 {
		m.logger.Debug("No custom concepts configured, skipping")
		return matches, failed
	}

	short := extractor.Truncate(content, m.budget)
	for _, def := range defs {
		slot := def.DisplayOrder
		if slot < 1 || slot > models.MaxConceptSlots {
			m.logger.Warn("Skipping concept definition with invalid slot", logger.Int("slot", slot))
			continue
		}

		match, err := m.matchOne(ctx, def, short)
		if err != nil {
			m.logger.Error("Custom concept match failed",
				logger.Int("slot", slot),
				logger.String("relationship", def.RelationshipName),
				logger.Error(err),
			)
			failed[slot] = err
			continue
		}

		m.logger.Info("Custom concept matched",
			logger.Int("slot", slot),
			logger.String("relationship", def.RelationshipName),
			logger.Strings("concepts", match.MatchingConcepts),
		)
		matches[slot] = match
	}
	return matches, failed
}

// matchOne 捕获 panic，避免影响其他槽位
func (m *Matcher) matchOne(ctx context.Context, def models.CustomConceptDefinition, content string) (match models.ConceptMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrConceptMatch, r)
		}
	}()

	allowed := def.ConceptList()
	response, err := m.client.Generate(ctx, Prompt(def.RelationshipName, allowed, content))
	if err != nil {
		return models.ConceptMatch{}, fmt.Errorf("%w: %w", ErrConceptMatch, err)
	}

	obj := parser.Parse(response)
	return models.ConceptMatch{
		RelationshipName: def.RelationshipName,
		MatchingConcepts: filterAllowed(parser.Strings(obj.Get("concepts")), allowed),
	}, nil
}

// filterAllowed 只保留闭集中的概念，按定义中的写法返回
func filterAllowed(candidates, allowed []string) []string {
	canonical := make(map[string]string, len(allowed))
	for _, a := range allowed {
		canonical[strings.ToLower(a)] = a
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool)
	for _, c := range candidates {
		name, ok := canonical[strings.ToLower(strings.TrimSpace(c))]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Prompt 概念匹配提示词
func Prompt(relationship string, concepts []string, content string) string {
	var b strings.Builder
	b.WriteString("从以下论文摘要中，判断该论文是否使用了这些概念。\n\n")
	b.WriteString("关系类型: " + relationship + "\n")
	b.WriteString("可能的概念: " + strings.Join(concepts, ", ") + "\n\n")
	b.WriteString("只返回JSON格式（不要markdown标记）：{\"concepts\": [\"匹配的概念1\", \"匹配的概念2\"]}\n")
	b.WriteString("如果没有匹配，返回：{\"concepts\": []}\n")
	b.WriteString("只返回列表中存在的概念名称。\n\n")
	b.WriteString("论文内容：\n")
	b.WriteString(content)
	return b.String()
}

// Encode 序列化后写入任务的概念槽位
func Encode(match models.ConceptMatch) (string, error) {
	if match.MatchingConcepts == nil {
		match.MatchingConcepts = []string{}
	}
	data, err := json.Marshal(match)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode 解析概念槽位，空字符串得到零值
func Decode(s string) (models.ConceptMatch, error) {
	var match models.ConceptMatch
	if s == "" {
		return match, nil
	}
	err := json.Unmarshal([]byte(s), &match)
	return match, err
}
