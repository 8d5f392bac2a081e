package validator

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-crypt/x/blake2b"

	"github.com/feichai0017/paper-processor/pkg/logger"
)

// ErrInvalidFile 上传文件未通过校验
var ErrInvalidFile = errors.New("invalid file")

// PaperValidator 上传论文校验器
type PaperValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}，空列表表示不检查 MIME
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// Err 汇总为一个错误，校验通过时为 nil
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("%w: %s", ErrInvalidFile, strings.Join(msgs, "; "))
}

// DefaultConfig CAJ 没有稳定的 MIME 识别结果，只检查扩展名
func DefaultConfig(maxFileSize int64, extensions []string) *ValidatorConfig {
	types := make(map[string][]string, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		switch ext {
		case ".pdf":
			types[ext] = []string{"application/pdf"}
		default:
			types[ext] = nil
		}
	}
	return &ValidatorConfig{MaxFileSize: maxFileSize, AllowedTypes: types}
}

func NewPaperValidator(log logger.Logger, config *ValidatorConfig) *PaperValidator {
	if config == nil {
		config = DefaultConfig(50*1024*1024, []string{".pdf", ".caj"})
	}
	return &PaperValidator{logger: log.Named("validator"), config: config}
}

// Validate 校验并计算内容指纹，结束后读指针回到开头
func (v *PaperValidator) Validate(r io.ReadSeeker, filename string, size int64) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(filename)),
		},
	}

	hash, err := Fingerprint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}
	head = head[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}
	result.FileInfo.MimeType = http.DetectContentType(head)

	result.add(v.validateBasics(result.FileInfo)...)
	if result.IsValid {
		result.add(v.validateContent(result.FileInfo, head)...)
	}

	if !result.IsValid {
		v.logger.Info("Rejected upload",
			logger.String("filename", filename),
			logger.Any("errors", result.Errors),
		)
	}
	return result, nil
}

func (r *ValidationResult) add(errs ...ValidationError) {
	if len(errs) > 0 {
		r.IsValid = false
		r.Errors = append(r.Errors, errs...)
	}
}

func (v *PaperValidator) validateBasics(info FileInfo) []ValidationError {
	var errs []ValidationError
	if info.Size <= 0 {
		errs = append(errs, ValidationError{Code: "EMPTY_FILE", Message: "file is empty", Field: "size"})
	}
	if v.config.MaxFileSize > 0 && info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("file size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("file type %q is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *PaperValidator) validateContent(info FileInfo, head []byte) []ValidationError {
	allowed := v.config.AllowedTypes[info.Extension]
	if len(allowed) == 0 {
		return nil
	}
	for _, mime := range allowed {
		if mime == info.MimeType {
			return nil
		}
	}
	// 部分 PDF 在文件头前有垃圾字节
	if info.Extension == ".pdf" && bytes.Contains(head, []byte("%PDF-")) {
		return nil
	}
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("invalid MIME type %s for extension %s", info.MimeType, info.Extension),
		Field:   "mimeType",
	}}
}

// Fingerprint 内容的 blake2b-256 指纹，读取后回到开头
func Fingerprint(r io.ReadSeeker) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
