package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/internal/service/concept"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// ConceptService 自定义概念组合管理
type ConceptService interface {
	List(ctx context.Context) ([]models.CustomConceptDefinition, error)
	Get(ctx context.Context, slot int) (*models.CustomConceptDefinition, error)
	Upsert(ctx context.Context, in concept.Input) (*models.CustomConceptDefinition, error)
	Delete(ctx context.Context, slot int) error
}

type ConceptHandler struct {
	service ConceptService
	logger  logger.Logger
}

func NewConceptHandler(service ConceptService, log logger.Logger) *ConceptHandler {
	return &ConceptHandler{service: service, logger: log}
}

func (h *ConceptHandler) List(c *gin.Context) {
	defs, err := h.service.List(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to list concepts", err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

func (h *ConceptHandler) Get(c *gin.Context) {
	slot, ok := h.slot(c)
	if !ok {
		return
	}
	def, err := h.service.Get(c.Request.Context(), slot)
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to get concept", err)
		return
	}
	c.JSON(http.StatusOK, def)
}

// Upsert 路径中的槽位优先于请求体
func (h *ConceptHandler) Upsert(c *gin.Context) {
	var in concept.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if c.Param("slot") != "" {
		slot, ok := h.slot(c)
		if !ok {
			return
		}
		in.DisplayOrder = slot
	}

	def, err := h.service.Upsert(c.Request.Context(), in)
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to save concept", err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (h *ConceptHandler) Delete(c *gin.Context) {
	slot, ok := h.slot(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), slot); err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to delete concept", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConceptHandler) slot(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid slot", err)
		return 0, false
	}
	return slot, true
}
