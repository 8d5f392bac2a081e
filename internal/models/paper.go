package models

import (
	"strings"
	"time"
)

// NotExtracted 字段缺失或为空时使用的占位值，永远不写入空字符串或 null
const NotExtracted = "未提取"

// MaxConceptSlots 自定义概念组合的最大数量
const MaxConceptSlots = 3

// TaskStatus 处理任务状态
type TaskStatus string

const (
	StatusUploading       TaskStatus = "UPLOADING"
	StatusConverting      TaskStatus = "CONVERTING"
	StatusExtracting      TaskStatus = "EXTRACTING"
	StatusAnalyzing       TaskStatus = "ANALYZING"
	StatusPendingApproval TaskStatus = "PENDING_APPROVAL"
	StatusApproved        TaskStatus = "APPROVED"
	StatusRejected        TaskStatus = "REJECTED"
	StatusFailed          TaskStatus = "FAILED"
)

// Terminal 终态之后不再发生流水线状态迁移
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// ProcessingTask 一次上传对应一条记录，按 TaskID 原地更新直到终态
type ProcessingTask struct {
	TaskID       string     `json:"taskId"`
	FileName     string     `json:"fileName"`
	FilePath     string     `json:"filePath"`
	ContentHash  string     `json:"contentHash,omitempty"`
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	CurrentStep  string     `json:"currentStep"`
	ErrorMessage string     `json:"errorMessage,omitempty"`

	ExtractedTitle       string `json:"extractedTitle,omitempty"`
	ExtractedAuthors     string `json:"extractedAuthors,omitempty"`
	ExtractedInstitution string `json:"extractedInstitution,omitempty"`
	ExtractedYear        string `json:"extractedYear,omitempty"`
	ExtractedSource      string `json:"extractedSource,omitempty"`
	ExtractedKeywords    string `json:"extractedKeywords,omitempty"`
	ExtractedDoi         string `json:"extractedDoi,omitempty"`
	ExtractedAbstract    string `json:"extractedAbstract,omitempty"`
	ExtractedSummary     string `json:"extractedSummary,omitempty"`
	// ANALYZING 阶段生成的完整摘要 JSON
	ExtractedSummaryJSON string `json:"extractedSummaryJson,omitempty"`

	ExtractedCustomConcept1 string `json:"extractedCustomConcept1,omitempty"`
	ExtractedCustomConcept2 string `json:"extractedCustomConcept2,omitempty"`
	ExtractedCustomConcept3 string `json:"extractedCustomConcept3,omitempty"`

	CreatedTime   time.Time  `json:"createdTime"`
	UpdatedTime   time.Time  `json:"updatedTime"`
	CompletedTime *time.Time `json:"completedTime,omitempty"`
}

// ConceptSlot 返回槽位 1..3 的序列化匹配结果
func (t *ProcessingTask) ConceptSlot(slot int) string {
	switch slot {
	case 1:
		return t.ExtractedCustomConcept1
	case 2:
		return t.ExtractedCustomConcept2
	case 3:
		return t.ExtractedCustomConcept3
	}
	return ""
}

// SetConceptSlot 越界槽位被忽略
func (t *ProcessingTask) SetConceptSlot(slot int, value string) {
	switch slot {
	case 1:
		t.ExtractedCustomConcept1 = value
	case 2:
		t.ExtractedCustomConcept2 = value
	case 3:
		t.ExtractedCustomConcept3 = value
	}
}

// ApplyMetadata 将抽取结果写入任务
func (t *ProcessingTask) ApplyMetadata(m MetadataFields) {
	t.ExtractedTitle = m.Title
	t.ExtractedAuthors = m.Author
	t.ExtractedInstitution = m.Organ
	t.ExtractedYear = m.Year
	t.ExtractedSource = m.Source
	t.ExtractedKeywords = m.Keyword
	t.ExtractedDoi = m.Doi
	t.ExtractedAbstract = m.Summary
}

// MetadataFields 元数据抽取字段，json 键与提示词中的字段名一致
type MetadataFields struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Organ   string `json:"organ"`
	Year    string `json:"year"`
	Source  string `json:"source"`
	Keyword string `json:"keyword"`
	Doi     string `json:"doi"`
	Summary string `json:"summary"`
}

// SummaryFields 摘要生成阶段的字段
type SummaryFields struct {
	Summary1    string `json:"summary1"`
	Summary2    string `json:"summary2"`
	Summary3    string `json:"summary3"`
	Summary4    string `json:"summary4"`
	Summary5    string `json:"summary5"`
	Summary6    string `json:"summary6"`
	Target      string `json:"target"`
	Algorithm1  string `json:"algorithm1"`
	Algorithm2  string `json:"algorithm2"`
	Algorithm3  string `json:"algorithm3"`
	Algorithm4  string `json:"algorithm4"`
	Environment string `json:"environment"`
	Tools       string `json:"tools"`
	Datas       string `json:"datas"`
	Standard    string `json:"standard"`
	Result      string `json:"result"`
	Future      string `json:"future"`
	Weekpoint   string `json:"weekpoint"`
	Keyword     string `json:"keyword"`
	FullSummary string `json:"fullSummary"`
}

// ConceptMatch 单个概念组合的匹配结果
type ConceptMatch struct {
	RelationshipName string   `json:"relationshipName"`
	MatchingConcepts []string `json:"matchingConcepts"`
}

// CustomConceptDefinition 用户定义的（关系, 概念集合），DisplayOrder 即槽位
type CustomConceptDefinition struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	RelationshipName string    `json:"relationshipName" gorm:"not null"`
	Concepts         string    `json:"concepts" gorm:"type:text"` // 分号分隔
	DisplayOrder     int       `json:"displayOrder" gorm:"uniqueIndex;not null"`
	CreatedAt        time.Time `json:"createdTime"`
	UpdatedAt        time.Time `json:"updatedTime"`
}

func (CustomConceptDefinition) TableName() string { return "custom_concept" }

// ConceptList 拆分分号分隔的概念，去掉空白和重复项
func (d *CustomConceptDefinition) ConceptList() []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range strings.Split(d.Concepts, ";") {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// ArticleRecord 审核通过后的永久记录
type ArticleRecord struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Title          string    `json:"title" gorm:"index;not null"`
	Author         string    `json:"author"`
	Organ          string    `json:"organ"`
	Year           string    `json:"year"`
	Source         string    `json:"source"`
	Keyword        string    `json:"keyword"`
	Doi            string    `json:"doi" gorm:"index"`
	Summary        string    `json:"summary" gorm:"type:text"`
	PathA          string    `json:"patha"`
	PathPDF        string    `json:"pathpdf"`
	PathDOCX       string    `json:"pathdocx"`
	PathTXT        string    `json:"pathtxt"`
	CustomConcept1 string    `json:"customConcept1" gorm:"type:text"`
	CustomConcept2 string    `json:"customConcept2" gorm:"type:text"`
	CustomConcept3 string    `json:"customConcept3" gorm:"type:text"`
}

func (ArticleRecord) TableName() string { return "article_info" }

// FilePaths 按下载字段名返回文件路径
func (a *ArticleRecord) FilePaths() map[string]string {
	return map[string]string{
		"patha":    a.PathA,
		"pathpdf":  a.PathPDF,
		"pathdocx": a.PathDOCX,
		"pathtxt":  a.PathTXT,
	}
}

// ArticleSummary 每次保存追加一条，IfTeacher 标记是否为人工审校版本
type ArticleSummary struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time `json:"createdAt"`
	Model       string    `json:"model"`
	Title       string    `json:"title" gorm:"index"`
	Summary1    string    `json:"summary1" gorm:"type:text"`
	Summary2    string    `json:"summary2" gorm:"type:text"`
	Summary3    string    `json:"summary3" gorm:"type:text"`
	Summary4    string    `json:"summary4" gorm:"type:text"`
	Summary5    string    `json:"summary5" gorm:"type:text"`
	Summary6    string    `json:"summary6" gorm:"type:text"`
	Target      string    `json:"target" gorm:"type:text"`
	Algorithm1  string    `json:"algorithm1" gorm:"type:text"`
	Algorithm2  string    `json:"algorithm2" gorm:"type:text"`
	Algorithm3  string    `json:"algorithm3" gorm:"type:text"`
	Algorithm4  string    `json:"algorithm4" gorm:"type:text"`
	Environment string    `json:"environment" gorm:"type:text"`
	Tools       string    `json:"tools" gorm:"type:text"`
	Datas       string    `json:"datas" gorm:"type:text"`
	Standard    string    `json:"standard" gorm:"type:text"`
	Result      string    `json:"result" gorm:"type:text"`
	Future      string    `json:"future" gorm:"type:text"`
	Weekpoint   string    `json:"weekpoint" gorm:"type:text"`
	FullSummary string    `json:"fullSummary" gorm:"type:text"`
	Keyword     string    `json:"keyword"`
	IfTeacher   string    `json:"ifteacher"`
}

func (ArticleSummary) TableName() string { return "article_summary" }
