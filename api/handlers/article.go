package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// GraphRebuilder 空标题表示全量重建
type GraphRebuilder interface {
	RebuildGraph(ctx context.Context, title string) error
}

// ArticleQuery 已入库论文的查询
type ArticleQuery interface {
	FindByTitle(ctx context.Context, title string) (*models.ArticleRecord, error)
	SummariesByTitle(ctx context.Context, title string) ([]models.ArticleSummary, error)
}

type GraphHandler struct {
	graph  GraphRebuilder
	logger logger.Logger
}

func NewGraphHandler(graph GraphRebuilder, log logger.Logger) *GraphHandler {
	return &GraphHandler{graph: graph, logger: log}
}

type rebuildRequest struct {
	Title string `json:"title"`
}

// Rebuild 请求体可省略
func (h *GraphHandler) Rebuild(c *gin.Context) {
	var req rebuildRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if err := h.graph.RebuildGraph(c.Request.Context(), req.Title); err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to rebuild graph", err)
		return
	}

	scope := "full"
	if req.Title != "" {
		scope = req.Title
	}
	c.JSON(http.StatusOK, gin.H{"message": "Graph rebuilt", "scope": scope})
}

type ArticleHandler struct {
	articles ArticleQuery
	logger   logger.Logger
}

func NewArticleHandler(articles ArticleQuery, log logger.Logger) *ArticleHandler {
	return &ArticleHandler{articles: articles, logger: log}
}

// Files 返回 patha/pathpdf/pathdocx/pathtxt
func (h *ArticleHandler) Files(c *gin.Context) {
	article, err := h.articles.FindByTitle(c.Request.Context(), c.Param("title"))
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to find article", err)
		return
	}
	c.JSON(http.StatusOK, article.FilePaths())
}

func (h *ArticleHandler) Summaries(c *gin.Context) {
	summaries, err := h.articles.SummariesByTitle(c.Request.Context(), c.Param("title"))
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to list summaries", err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}
