package health

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"meal-planner/internal/core/similarity"
	"meal-planner/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 單一依賴檢查的時間上限
const pingTimeout = 2 * time.Second

// Pinger 可檢查連線的依賴
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource 快取統計
type StatsSource interface {
	GetStats() map[string]interface{}
}

// QueueSource 預熱隊列狀態
type QueueSource interface {
	GetQueueStatus() *similarity.WarmerStatus
}

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status       string                   `json:"status"`
	Timestamp    time.Time                `json:"timestamp"`
	Version      string                   `json:"version"`
	Runtime      map[string]interface{}   `json:"runtime"`
	Dependencies map[string]string        `json:"dependencies"`
	Cache        map[string]interface{}   `json:"cache,omitempty"`
	Queue        *similarity.WarmerStatus `json:"queue,omitempty"`
}

// Handler 健康檢查處理器
type Handler struct {
	version      string
	dependencies map[string]Pinger
	cache        StatsSource
	queue        QueueSource
}

// NewHandler 創建健康檢查處理器，cache 與 queue 可為 nil
func NewHandler(version string, dependencies map[string]Pinger, cache StatsSource, queue QueueSource) *Handler {
	if dependencies == nil {
		dependencies = map[string]Pinger{}
	}
	return &Handler{
		version:      version,
		dependencies: dependencies,
		cache:        cache,
		queue:        queue,
	}
}

// HealthCheck 回報執行狀態，任何依賴失敗時 status 為 degraded
func (h *Handler) HealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	deps, healthy := h.checkDependencies(c.Request.Context())
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
		Dependencies: deps,
	}
	if !healthy {
		response.Status = "degraded"
	}
	if h.cache != nil {
		response.Cache = h.cache.GetStats()
	}
	if h.queue != nil {
		response.Queue = h.queue.GetQueueStatus()
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("status", response.Status),
	)
	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 所有依賴可用才回 200
func (h *Handler) ReadinessCheck(c *gin.Context) {
	deps, healthy := h.checkDependencies(c.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not_ready",
			"dependencies": deps,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"dependencies": deps,
	})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (h *Handler) checkDependencies(ctx context.Context) (map[string]string, bool) {
	names := make([]string, 0, len(h.dependencies))
	for name := range h.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := h.dependencies[name].Ping(pctx)
		cancel()
		if err != nil {
			common.LogWarn("Dependency check failed", zap.String("dependency", name), zap.Error(err))
			out[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}
