package router

import (
	"fmt"
	"strings"

	"github.com/veritag-api/internal/cache"
	"github.com/veritag-api/internal/config"
	adminhandlers "github.com/veritag-api/internal/http/handlers/admin"
	publichandlers "github.com/veritag-api/internal/http/handlers/public"
	"github.com/veritag-api/internal/logger"
	"github.com/veritag-api/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "vt"
	}
	scanRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:scan", redisPrefix),
		WindowSeconds: cfg.Security.ScanRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.ScanRateLimit.MaxRequests,
		Message:       "扫码过于频繁，请稍后再试",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 归档下载（令牌校验在 Handler 内完成）
	r.GET("/downloads/:filename", publicHandler.DownloadBatchArchive)

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/scan/:code",
				RateLimitMiddleware(cache.Client(), scanRule, KeyByIP),
				publicHandler.ScanItem)
			public.GET("/items/:id/scans", publicHandler.GetScanHistory)
		}

		// 管理接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/products", adminHandler.CreateProduct)
			admin.GET("/products", adminHandler.ListProducts)
			admin.GET("/products/:id", adminHandler.GetProduct)
			admin.PUT("/products/:id", adminHandler.UpdateProduct)
			admin.DELETE("/products/:id", adminHandler.DeleteProduct)

			admin.POST("/batches", adminHandler.CreateBatch)
			admin.GET("/batches", adminHandler.ListBatches)
			admin.GET("/batches/:id", adminHandler.GetBatch)
			admin.GET("/batches/:id/progress", adminHandler.GetBatchProgress)
			admin.GET("/batches/:id/items", adminHandler.GetBatchItems)
			admin.POST("/batches/:id/retry-jobs", adminHandler.RetryBatchJobs)
			admin.POST("/batches/:id/download-token", adminHandler.IssueBatchDownloadToken)
			admin.DELETE("/batches/:id", adminHandler.DeleteBatch)
		}
	}

	return r
}
