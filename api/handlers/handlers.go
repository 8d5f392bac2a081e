package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/paper-processor/internal/repository"
	"github.com/feichai0017/paper-processor/internal/service/concept"
	"github.com/feichai0017/paper-processor/internal/service/paper"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

type Handlers struct {
	Paper   *PaperHandler
	Concept *ConceptHandler
	Graph   *GraphHandler
	Article *ArticleHandler
}

func NewHandlers(
	papers PaperService,
	concepts ConceptService,
	graph GraphRebuilder,
	articles ArticleQuery,
	maxUploadSize int64,
	log logger.Logger,
) *Handlers {
	log = log.Named("api")
	return &Handlers{
		Paper:   NewPaperHandler(papers, maxUploadSize, log),
		Concept: NewConceptHandler(concepts, log),
		Graph:   NewGraphHandler(graph, log),
		Article: NewArticleHandler(articles, log),
	}
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor 业务错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, paper.ErrNotFound),
		errors.Is(err, concept.ErrNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, paper.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, paper.ErrInvalidFile),
		errors.Is(err, concept.ErrInvalidDefinition):
		return http.StatusBadRequest
	case errors.Is(err, paper.ErrOverloaded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handleError 统一错误处理
func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	log = logger.FromContext(c.Request.Context(), log)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
