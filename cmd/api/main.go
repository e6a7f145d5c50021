package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meal-planner/internal/api"
	"meal-planner/internal/api/handlers/health"
	"meal-planner/internal/core/aggregation"
	"meal-planner/internal/core/ai/classifier"
	"meal-planner/internal/core/ai/openrouter"
	"meal-planner/internal/core/comparison"
	"meal-planner/internal/core/similarity"
	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/infrastructure/mealplan"
	"meal-planner/internal/infrastructure/persistence"
	"meal-planner/internal/infrastructure/persistence/postgres"
	"meal-planner/internal/infrastructure/persistence/sqlite"
	"meal-planner/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("database_driver", cfg.Database.Driver),
		zap.Bool("openrouter_enabled", cfg.OpenRouter.Enabled),
		zap.String("openrouter_model", cfg.OpenRouter.Model),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	store, err := openStore(&cfg.Database)
	if err != nil {
		common.LogFatal("Failed to open database", zap.Error(err))
	}
	defer store.Close()

	// Redis 層連不上時只用本地層與資料庫
	redisTier, err := comparison.NewRedisTier(&cfg.Redis)
	if err != nil {
		common.LogWarn("Redis unavailable, comparison cache runs without it", zap.Error(err))
		redisTier = nil
	}
	cache := comparison.NewCache(store, cfg.ComparisonCache.LocalMaxSize, redisTier)

	var cls similarity.Classifier
	if cfg.OpenRouter.Enabled {
		cls = classifier.NewClassifier(openrouter.NewClient(&cfg.OpenRouter), &cfg.Classifier)
	} else {
		common.LogWarn("OpenRouter disabled, similarity detection uses cached comparisons only")
	}

	engine := similarity.NewEngine(cache, cls, &cfg.Classifier)
	warmer := similarity.NewWarmer(engine, &cfg.Warmer)
	warmer.Start()

	service := aggregation.NewService(store, engine, warmer, mealplan.NewClient(&cfg.MealPlan))

	deps := map[string]health.Pinger{"database": store}
	if redisTier != nil {
		deps["redis"] = redisTier
	}
	router := api.SetupRouter(cfg, api.Dependencies{
		ShoppingLists: service,
		Comparisons:   cache,
		Health:        health.NewHandler(cfg.App.Version, deps, cache, warmer),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("debug", cfg.App.Debug),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	// 先停掉預熱再關閉資料層
	warmer.Close()
	if redisTier != nil {
		if err := redisTier.Close(); err != nil {
			common.LogWarn("Failed to close redis", zap.Error(err))
		}
	}

	common.LogInfo("Server exited")
}

// openStore 依設定的 driver 開啟持久層
func openStore(cfg *config.DatabaseConfig) (persistence.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Connect(cfg)
	case "sqlite":
		return sqlite.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
