package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"meal-planner/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 超過此數量才清理過期指紋
const dedupPruneThreshold = 1024

// Deduplicator 擋下時間窗內重複送出的 POST 請求
type Deduplicator struct {
	mu       sync.Mutex
	window   time.Duration
	requests map[string]time.Time
	exempt   map[string]bool
	now      func() time.Time
}

// NewDeduplicator 創建去重器，window <= 0 時不去重
//
// exemptRoutes 為路由樣板（例如 "/api/v1/shopping-lists/:id/decisions"），
// 冪等的寫入讓客戶端重試時必須抵達處理器。
func NewDeduplicator(window time.Duration, exemptRoutes ...string) *Deduplicator {
	exempt := make(map[string]bool, len(exemptRoutes))
	for _, route := range exemptRoutes {
		exempt[route] = true
	}
	return &Deduplicator{
		window:   window,
		requests: make(map[string]time.Time),
		exempt:   exempt,
		now:      time.Now,
	}
}

// Middleware 請求去重中間件
//
// 指紋由方法、路徑、使用者與請求體雜湊組成，不同使用者的相同請求互不影響。
func (d *Deduplicator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.window <= 0 || c.Request.Method != http.MethodPost || d.exempt[c.FullPath()] {
			c.Next()
			return
		}

		fingerprint := c.Request.Method + ":" + c.Request.URL.Path + ":" + c.GetHeader(UserIDHeader)
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				common.LogError("Failed to read request body", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, common.ErrorResponse{
					Code:    "REQUEST_TOO_LARGE",
					Message: "請求體過大",
				})
				return
			}
			hash := sha256.Sum256(body)
			fingerprint += ":" + hex.EncodeToString(hash[:])
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		if !d.admit(fingerprint) {
			common.LogInfo("Duplicate request rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Code:    common.ErrCodeTooManyRequests,
				Message: "重複的請求",
			})
			return
		}

		c.Next()
	}
}

// admit 記錄指紋，時間窗內已出現過則回傳 false
func (d *Deduplicator) admit(fingerprint string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.requests[fingerprint]; ok && now.Sub(last) <= d.window {
		return false
	}
	d.requests[fingerprint] = now

	if len(d.requests) > dedupPruneThreshold {
		for k, t := range d.requests {
			if now.Sub(t) > d.window {
				delete(d.requests, k)
			}
		}
	}
	return true
}
