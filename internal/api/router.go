package api

import (
	"time"

	"meal-planner/internal/api/handlers/comparisons"
	"meal-planner/internal/api/handlers/health"
	"meal-planner/internal/api/handlers/shoppinglist"
	"meal-planner/internal/api/middleware"
	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// 請求超時，涵蓋最慢的 AI 批次
const timeoutDuration = 120 * time.Second

// Dependencies 路由需要的服務
type Dependencies struct {
	ShoppingLists shoppinglist.Service
	Comparisons   comparisons.Lookup
	Health        *health.Handler
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", middleware.UserIDHeader},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	// 健康檢查與指標不受限流影響
	router.GET("/health", deps.Health.HealthCheck)
	router.GET("/ready", deps.Health.ReadinessCheck)
	router.GET("/live", deps.Health.LivenessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window).Middleware())
	}
	api.Use(middleware.BodySizeLimit(cfg.MaxBodyBytes))
	api.Use(middleware.NewDeduplicator(cfg.DedupWindow, "/api/v1/shopping-lists/:id/decisions").Middleware())
	api.Use(middleware.Timeout(timeoutDuration))
	{
		comparisonHandler := comparisons.NewHandler(deps.Comparisons)
		api.GET("/comparisons", comparisonHandler.Get)
		api.GET("/comparisons/:name/neighbors", comparisonHandler.Neighbors)

		lists := api.Group("/shopping-lists", middleware.RequireUser())
		shoppinglist.NewHandler(deps.ShoppingLists).Register(lists)
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Int64("max_body_size", cfg.MaxBodyBytes),
		zap.Duration("dedup_window", cfg.DedupWindow),
		zap.Duration("timeout", timeoutDuration),
	)
	return router
}
