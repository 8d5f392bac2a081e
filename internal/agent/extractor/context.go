package extractor

import (
	"encoding/json"
	"os"
	"strings"
)

// TruncationMarker 上下文被截断时追加在末尾
const TruncationMarker = "\n...[内容已截断]"

// doclingDoc 结构化抽取脚本输出的精简视图
type doclingDoc struct {
	Title        string           `json:"title"`
	Authors      []string         `json:"authors"`
	Abstract     string           `json:"abstract"`
	Introduction string           `json:"introduction"`
	Conclusion   string           `json:"conclusion"`
	Sections     []doclingSection `json:"sections"`
	MarkdownHead string           `json:"markdown_head"`
}

type doclingSection struct {
	Title          string `json:"title"`
	FirstParagraph string `json:"first_paragraph"`
}

// BuildContext 优先使用结构化抽取结果，文件缺失或无法解析时退回原始文本
func BuildContext(rawText, doclingPath string, budget int) string {
	if doclingPath != "" {
		if condensed, ok := condensedContext(doclingPath); ok {
			return Truncate(condensed, budget)
		}
	}
	return Truncate(strings.TrimSpace(rawText), budget)
}

func condensedContext(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	var doc doclingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false
	}

	var b strings.Builder
	write := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\n\n")
		}
	}

	write("Title", doc.Title)
	write("Authors", strings.Join(doc.Authors, "; "))
	write("Abstract", doc.Abstract)
	write("Introduction", doc.Introduction)
	write("Conclusion", doc.Conclusion)
	for _, sec := range doc.Sections {
		if sec.FirstParagraph == "" {
			continue
		}
		write("Section "+strings.TrimSpace(sec.Title), sec.FirstParagraph)
	}

	// 只有 markdown 头部时也可用
	if b.Len() == 0 {
		write("Content", doc.MarkdownHead)
	}
	if b.Len() == 0 {
		return "", false
	}
	return strings.TrimSpace(b.String()), true
}

// Truncate 按字符（rune）截断，超出预算时追加截断标记
func Truncate(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + TruncationMarker
}
