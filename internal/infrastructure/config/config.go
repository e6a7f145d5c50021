package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 比對批次的硬上限
const (
	MaxBatchSize            = 25
	MaxConcurrentBatchLimit = 5
)

// Config 應用配置
type Config struct {
	App             AppConfig             `mapstructure:"app"`
	Server          ServerConfig          `mapstructure:"server"`
	OpenRouter      OpenRouterConfig      `mapstructure:"openrouter"`
	Classifier      ClassifierConfig      `mapstructure:"classifier"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Redis           RedisConfig           `mapstructure:"redis"`
	ComparisonCache ComparisonCacheConfig `mapstructure:"comparison_cache"`
	Warmer          WarmerConfig          `mapstructure:"warmer"`
	MealPlan        MealPlanConfig        `mapstructure:"mealplan"`
	RateLimit       RateLimitConfig       `mapstructure:"rate_limit"`
	MaxBodyBytes    int64                 `mapstructure:"max_body_bytes"`
	DedupWindow     time.Duration         `mapstructure:"dedup_window"`
	LogLevel        string                `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ClassifierConfig 食材比對分類設定
type ClassifierConfig struct {
	BatchSize            int     `mapstructure:"batch_size"`
	MaxConcurrentBatches int     `mapstructure:"max_concurrent_batches"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"`
	Burst                int     `mapstructure:"burst"`
}

// DatabaseConfig 資料庫設定
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig Redis 設定
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ComparisonCacheConfig 比對快取本地層設定
type ComparisonCacheConfig struct {
	LocalMaxSize int `mapstructure:"local_max_size"`
}

// WarmerConfig 快取預熱隊列設定
type WarmerConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// MealPlanConfig 餐點計畫服務設定
type MealPlanConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件，不存在時只用環境變數
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()

	// 設定預設值
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	_ = v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("openrouter.model", "OPENROUTER_MODEL")
	_ = v.BindEnv("openrouter.max_tokens", "MODEL_MAX_TOKENS")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("mealplan.base_url", "MEALPLAN_BASE_URL")
	_ = v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	_ = v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// 讀取設定檔
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// logger 尚未初始化，改用 fmt.Println
	fmt.Println("Loading configuration", "openrouter_api_key:", maskAPIKey(v.GetString("openrouter.api_key")), "database_driver:", v.GetString("database.driver"))

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// maskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "meal-planner")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")

	// OpenRouter 設定
	v.SetDefault("openrouter.enabled", false)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "qwen/qwen-2.5-72b-instruct:free")
	v.SetDefault("openrouter.max_tokens", 4000)
	v.SetDefault("openrouter.timeout", "60s")

	// 比對分類設定
	v.SetDefault("classifier.batch_size", MaxBatchSize)
	v.SetDefault("classifier.max_concurrent_batches", MaxConcurrentBatchLimit)
	v.SetDefault("classifier.requests_per_second", 2.0)
	v.SetDefault("classifier.burst", MaxConcurrentBatchLimit)

	// 資料庫設定
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/meal-planner.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)

	// Redis 設定
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "meal-planner:cmp:")
	v.SetDefault("redis.timeout", "500ms")

	// 比對快取設定
	v.SetDefault("comparison_cache.local_max_size", 5000)

	// 預熱隊列設定
	v.SetDefault("warmer.workers", 2)
	v.SetDefault("warmer.max_size", 100)

	// 餐點計畫服務
	v.SetDefault("mealplan.base_url", "")
	v.SetDefault("mealplan.timeout", "10s")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("max_body_bytes", 1<<20)
	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	// 驗證比對分類設定
	if config.Classifier.BatchSize < 1 || config.Classifier.BatchSize > MaxBatchSize {
		return fmt.Errorf("classifier batch size must be between 1 and %d", MaxBatchSize)
	}
	if config.Classifier.MaxConcurrentBatches < 1 || config.Classifier.MaxConcurrentBatches > MaxConcurrentBatchLimit {
		return fmt.Errorf("classifier concurrency must be between 1 and %d", MaxConcurrentBatchLimit)
	}
	if config.Classifier.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid classifier requests per second")
	}

	if config.OpenRouter.Enabled && config.OpenRouter.APIKey == "" {
		return fmt.Errorf("openrouter api key is required when openrouter is enabled")
	}

	// 驗證資料庫設定
	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}
	if config.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	if config.ComparisonCache.LocalMaxSize <= 0 {
		return fmt.Errorf("invalid comparison cache local max size")
	}

	// 驗證隊列設定
	if config.Warmer.Workers <= 0 {
		return fmt.Errorf("invalid warmer workers")
	}
	if config.Warmer.MaxSize <= 0 {
		return fmt.Errorf("invalid warmer max size")
	}

	return nil
}
