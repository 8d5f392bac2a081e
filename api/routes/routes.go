package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/paper-processor/api/handlers"
	"github.com/feichai0017/paper-processor/api/middleware"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// Options 路由级配置，Metrics 为空时不暴露 /metrics
type Options struct {
	AllowedOrigins []string
	Metrics        http.Handler
	Logger         logger.Logger
}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	// 全局中间件
	r.Use(middleware.RequestID())
	if opts.Logger != nil {
		r.Use(middleware.AccessLog(opts.Logger))
	}
	r.Use(middleware.CORS(opts.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := r.Group("/api/v1")

	// 论文处理
	papers := v1.Group("/papers")
	{
		papers.POST("", h.Paper.Upload)
		papers.GET("", h.Paper.List)
		papers.GET("/:taskId", h.Paper.GetStatus)
		papers.POST("/:taskId/approve", h.Paper.Approve)
		papers.POST("/:taskId/reject", h.Paper.Reject)
	}

	// 自定义概念组合
	concepts := v1.Group("/concepts")
	{
		concepts.GET("", h.Concept.List)
		concepts.POST("", h.Concept.Upsert)
		concepts.GET("/:slot", h.Concept.Get)
		concepts.PUT("/:slot", h.Concept.Upsert)
		concepts.DELETE("/:slot", h.Concept.Delete)
	}

	v1.POST("/graph/rebuild", h.Graph.Rebuild)

	articles := v1.Group("/articles")
	{
		articles.GET("/:title/files", h.Article.Files)
		articles.GET("/:title/summaries", h.Article.Summaries)
	}
}
