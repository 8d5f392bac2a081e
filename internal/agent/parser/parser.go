// Package parser extracts a JSON object from raw LLM output. It never fails:
// fenced, double-encoded or prose-wrapped JSON is recovered where possible,
// anything else is preserved under RawKey.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RawKey 无法解析时保存原文的键
const RawKey = "raw"

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// Parse 返回一个可用的对象，空输入得到空对象
func Parse(text string) Object {
	cleaned := StripFences(text)
	if cleaned == "" {
		return Object{}
	}

	if obj, ok := decodeObject(cleaned, true); ok {
		return obj
	}

	// 前后夹杂说明文字时取最外层花括号
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		if obj, ok := decodeObject(cleaned[start:end+1], false); ok {
			return obj
		}
	}

	return Object{RawKey: StringValue(strings.TrimSpace(text))}
}

// StripFences 去掉首尾的代码块标记（含 ```json 语言标签）
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// 语言标签
		if i := strings.IndexAny(s, "\n{["); i >= 0 && !strings.ContainsAny(s[:i], "{[\"") {
			s = s[i:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		return strings.TrimSpace(s)
	}
	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// decodeObject 顶层是字符串时再尝试解析一次其内容
func decodeObject(s string, unwrapString bool) (Object, bool) {
	var top any
	if err := json.Unmarshal([]byte(s), &top); err != nil {
		repaired := repairJSON(s)
		if repaired == s {
			return nil, false
		}
		if err := json.Unmarshal([]byte(repaired), &top); err != nil {
			return nil, false
		}
	}

	switch t := top.(type) {
	case map[string]any:
		return objectFromMap(t), true
	case string:
		if !unwrapString {
			return nil, false
		}
		inner := StripFences(t)
		var nested any
		if err := json.Unmarshal([]byte(inner), &nested); err == nil {
			if m, ok := nested.(map[string]any); ok {
				return objectFromMap(m), true
			}
		}
		return Object{RawKey: StringValue(t)}, true
	}
	return nil, false
}
