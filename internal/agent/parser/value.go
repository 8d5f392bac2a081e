package parser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind LLM 返回值的形态
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindList
	KindObject
)

// Value 字段值的标签联合：字符串、列表或嵌套对象
type Value struct {
	kind Kind
	str  string
	list []Value
	obj  Object
}

// Object 解析后的 JSON 对象
type Object map[string]Value

func StringValue(s string) Value     { return Value{kind: KindString, str: s} }
func ListValue(items ...Value) Value { return Value{kind: KindList, list: items} }
func ObjectValue(o Object) Value     { return Value{kind: KindObject, obj: o} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) List() []Value  { return v.list }
func (v Value) Object() Object { return v.obj }
func (v Value) IsNull() bool   { return v.kind == KindNull }

// fromAny 数字和布尔统一按文本处理
func fromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case string:
		return StringValue(t)
	case float64:
		return StringValue(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		return StringValue(strconv.FormatBool(t))
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, fromAny(item))
		}
		return ListValue(items...)
	case map[string]any:
		return ObjectValue(objectFromMap(t))
	}
	return Value{}
}

func objectFromMap(m map[string]any) Object {
	o := make(Object, len(m))
	for k, v := range m {
		o[k] = fromAny(v)
	}
	return o
}

// Normalize 把任意形态折叠成一个用于存储的字符串
func Normalize(v Value) string {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str)
	case KindList:
		parts := make([]string, 0, len(v.list))
		for _, item := range v.list {
			if s := Normalize(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case KindObject:
		if len(v.obj) == 0 {
			return ""
		}
		data, err := json.Marshal(v.obj)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return ""
}

// Strings 列表逐项展开，字符串按分号或逗号拆分
func Strings(v Value) []string {
	var out []string
	switch v.kind {
	case KindList:
		for _, item := range v.list {
			if s := Normalize(item); s != "" {
				out = append(out, s)
			}
		}
	case KindString:
		for _, part := range strings.FieldsFunc(v.str, func(r rune) bool { return r == ';' || r == ',' || r == '；' || r == '，' }) {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindList:
		return json.Marshal(v.list)
	case KindObject:
		return json.Marshal(v.obj)
	}
	return []byte("null"), nil
}

// Get 缺失的键返回空值
func (o Object) Get(key string) Value {
	if o == nil {
		return Value{}
	}
	return o[key]
}

// String 返回归一化后的字段
func (o Object) String(key string) string {
	return Normalize(o.Get(key))
}

// StringOr 字段缺失、为 null 或为空时返回 fallback
func (o Object) StringOr(key, fallback string) string {
	if s := o.String(key); s != "" {
		return s
	}
	return fallback
}

// Raw 解析失败时保留的原始文本
func (o Object) Raw() (string, bool) {
	if len(o) != 1 {
		return "", false
	}
	v, ok := o[RawKey]
	if !ok || v.kind != KindString {
		return "", false
	}
	return v.str, true
}
