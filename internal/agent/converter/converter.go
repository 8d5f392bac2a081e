// Package converter drives the external format converters that turn an
// uploaded paper into sibling PDF, DOCX, plain text and structured JSON files.
package converter

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrNoExtractableText 转换结束后文本文件不存在或为空
	ErrNoExtractableText = errors.New("no extractable text")
	// ErrNotConfigured 转换器未配置
	ErrNotConfigured = errors.New("converter not configured")
	// ErrMalformedPDF PDF 对象引用损坏，无法解析
	ErrMalformedPDF = errors.New("malformed pdf")
)

// Converter 读取 input，成功时生成 output
type Converter interface {
	Name() string
	Convert(ctx context.Context, input, output string) error
}

// Artifacts 同一基础名、不同扩展名的兄弟文件
type Artifacts struct {
	Original    string `json:"original"`
	PDF         string `json:"pdf"`
	DOCX        string `json:"docx"`
	TXT         string `json:"txt"`
	DoclingJSON string `json:"doclingJson,omitempty"` // 结构化抽取失败时为空
	Text        string `json:"-"`
}

// Siblings 根据原始路径计算各格式文件的路径
func Siblings(path string) Artifacts {
	base := BasePath(path)
	return Artifacts{
		Original: path,
		PDF:      base + ".pdf",
		DOCX:     base + ".docx",
		TXT:      base + ".txt",
	}
}

// BasePath 去掉扩展名
func BasePath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// DoclingPath 结构化抽取输出路径
func DoclingPath(path string) string {
	return BasePath(path) + ".docling.json"
}

// AllPaths 原始文件及所有可能的兄弟文件，用于清理
func AllPaths(path string) []string {
	a := Siblings(path)
	paths := []string{a.Original}
	for _, p := range []string{a.PDF, a.DOCX, a.TXT, DoclingPath(path)} {
		if p != a.Original {
			paths = append(paths, p)
		}
	}
	return paths
}
