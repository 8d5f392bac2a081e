package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/internal/service/paper"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// PaperService 上传、轮询与审核
type PaperService interface {
	Upload(ctx context.Context, file io.ReadSeeker, fileName string, size int64) (*models.ProcessingTask, error)
	GetStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	ListTasks(ctx context.Context, status models.TaskStatus) ([]*models.ProcessingTask, error)
	Approve(ctx context.Context, taskID string, edits paper.Edits) (*models.ProcessingTask, error)
	Reject(ctx context.Context, taskID string) (*models.ProcessingTask, error)
}

type PaperHandler struct {
	service       PaperService
	maxUploadSize int64
	logger        logger.Logger
}

// UploadResponse 上传后立即返回，处理在后台进行
type UploadResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	CreatedAt string `json:"createdAt"`
}

func NewPaperHandler(service PaperService, maxUploadSize int64, log logger.Logger) *PaperHandler {
	return &PaperHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
		logger:        log,
	}
}

// Upload 上传单篇论文
func (h *PaperHandler) Upload(c *gin.Context) {
	if h.maxUploadSize > 0 {
		// 为 multipart 头部留出余量，精确大小由校验器检查
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+1<<20)
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	name := c.PostForm("name")
	if name == "" {
		name = header.Filename
	}

	task, err := h.service.Upload(c.Request.Context(), file, name, header.Size)
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to upload paper", err)
		return
	}

	c.JSON(http.StatusAccepted, UploadResponse{
		TaskID:    task.TaskID,
		Status:    string(task.Status),
		FileName:  task.FileName,
		FileSize:  header.Size,
		CreatedAt: task.CreatedTime.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// GetStatus 获取处理状态
func (h *PaperHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// List 可按 status 查询参数过滤
func (h *PaperHandler) List(c *gin.Context) {
	tasks, err := h.service.ListTasks(c.Request.Context(), models.TaskStatus(c.Query("status")))
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to list tasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total": len(tasks),
		"tasks": tasks,
	})
}

// Approve 请求体可以为空，表示沿用抽取结果
func (h *PaperHandler) Approve(c *gin.Context) {
	var edits paper.Edits
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&edits); err != nil {
			handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	task, err := h.service.Approve(c.Request.Context(), c.Param("taskId"), edits)
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to approve task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *PaperHandler) Reject(c *gin.Context) {
	task, err := h.service.Reject(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to reject task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Task %s rejected", task.TaskID),
		"task":    task,
	})
}
