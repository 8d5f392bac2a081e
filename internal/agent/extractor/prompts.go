package extractor

import (
	"strings"
)

type promptField struct {
	key  string
	hint string
}

var metadataFields = []promptField{
	{"title", "论文标题"},
	{"author", "作者1; 作者2; 作者3"},
	{"organ", "作者单位"},
	{"year", "发表年份(仅数字)"},
	{"source", "期刊或会议名称"},
	{"keyword", "关键词1; 关键词2; 关键词3"},
	{"doi", "DOI编号"},
	{"summary", "论文摘要内容"},
}

var summaryFields = []promptField{
	{"summary1", "第1种对论文摘要的总结凝练，50字左右"},
	{"summary2", "第2种对论文摘要的总结凝练，50字左右"},
	{"summary3", "第3种对论文摘要的总结凝练，50字左右"},
	{"summary4", "第4种对论文摘要的总结凝练，50字左右"},
	{"summary5", "第5种对论文摘要的总结凝练，50字左右"},
	{"summary6", "第6种对论文摘要的总结凝练，50字左右，要用通俗易懂的语言"},
	{"target", "用通俗易懂的语言简述论文的研究动机"},
	{"algorithm1", "第1种介绍本文用到的核心算法，50字左右"},
	{"algorithm2", "第2种介绍本文用到的核心算法，50字左右"},
	{"algorithm3", "第3种介绍本文用到的核心算法，50字左右"},
	{"algorithm4", "第4种介绍本文用到的核心算法，50字左右，用通俗易懂的语言"},
	{"environment", "详细介绍本论文的实验环境"},
	{"tools", "详细介绍本论文的实验工具"},
	{"datas", "详细介绍本论文的实验数据"},
	{"standard", "详细介绍本论文的实验指标"},
	{"result", "详细介绍本论文的实验结果"},
	{"future", "从不同角度尽可能详细介绍本论文对未来工作的总结与展望"},
	{"weekpoint", "从不同角度尽可能详细介绍本论文已有研究的不足之处"},
	{"keyword", "文本的关键词，用;分隔"},
	{"fullSummary", "提取论文完整摘要"},
}

func renderTemplate(fields []promptField) string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range fields {
		b.WriteString("  \"")
		b.WriteString(f.key)
		b.WriteString("\": \"")
		b.WriteString(f.hint)
		b.WriteString("\"")
		if i < len(fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// MetadataPrompt 元数据抽取提示词
func MetadataPrompt(content string) string {
	return "你是一个学术论文元数据提取专家。请从下面的论文文本中提取元数据，并严格按照以下JSON格式返回，不要添加任何Markdown标记或额外说明：\n\n" +
		renderTemplate(metadataFields) +
		"\n\n如果某个字段无法提取，请使用空字符串\"\"。现在开始提取以下论文的元数据：\n\n" +
		content
}

// SummaryPrompt 摘要生成提示词
func SummaryPrompt(content string) string {
	return "你是一个学术论文分析专家。请阅读下面的论文内容，按照以下JSON格式生成总结，不要添加任何Markdown标记或额外说明：\n\n" +
		renderTemplate(summaryFields) +
		"\n\n如果某个字段无法确定，请使用空字符串\"\"。论文内容：\n\n" +
		content
}
