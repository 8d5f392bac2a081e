package parser

import "strings"

var smartQuotes = strings.NewReplacer("“", "\"", "”", "\"", "＂", "\"")

// repairJSON 修复 LLM 常见的格式问题：中文引号、尾随逗号、键缺少开引号
func repairJSON(s string) string {
	s = smartQuotes.Replace(s)
	return fixUnquotedKeys(dropTrailingCommas(s))
}

// dropTrailingCommas 删除 } 或 ] 之前多余的逗号，字符串内部不处理
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}
		if ch == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\t' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// fixUnquotedKeys 处理 `, title":` 这种缺少开引号的键
func fixUnquotedKeys(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)

	i := 0
	for i < len(in) {
		ch := in[i]
		if ch != '{' && ch != ',' {
			out = append(out, ch)
			i++
			continue
		}

		out = append(out, ch)
		i++
		for i < len(in) && (in[i] == ' ' || in[i] == '\n' || in[i] == '\t' || in[i] == '\r') {
			out = append(out, in[i])
			i++
		}
		if i >= len(in) || in[i] == '"' || !isKeyStart(in[i]) {
			continue
		}

		keyStart := i
		for i < len(in) && (isKeyStart(in[i]) || (in[i] >= '0' && in[i] <= '9')) {
			i++
		}
		if i+1 < len(in) && in[i] == '"' && in[i+1] == ':' {
			out = append(out, '"')
		}
		out = append(out, in[keyStart:i]...)
	}
	return string(out)
}

func isKeyStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}
