package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/weibaohui/llmchats/config"
	"github.com/weibaohui/llmchats/internal/handler"
)

func Setup(
	cfg *config.Config,
	providerHandler *handler.ProviderHandler,
	sessionHandler *handler.SessionHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	// 转录导出可能很大，开压缩
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/providers", providerHandler.List)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.POST("/:id/start", sessionHandler.Start)
			sessions.POST("/:id/cancel", sessionHandler.Cancel)
			sessions.GET("/:id/status", sessionHandler.Status)
			sessions.GET("/:id/transcript", sessionHandler.Transcript)
			sessions.GET("/:id/export", sessionHandler.Export)
			sessions.POST("/:id/summarize", sessionHandler.Summarize)
			sessions.GET("/:id/summaries", sessionHandler.Summaries)
		}

		api.GET("/queue/status", sessionHandler.QueueStatus)
	}

	return r
}
