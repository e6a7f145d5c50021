package middleware

import (
	"net/http"
	"strings"

	"meal-planner/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader 上游閘道驗證後帶入的使用者 ID
	UserIDHeader = "X-User-ID"
	// UserIDKey gin context 中的使用者 ID
	UserIDKey = "user_id"
)

// RequireUser 沒有使用者 ID 的請求回 401
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, common.ErrorResponse{
				Code:    common.ErrCodeUnauthorized,
				Message: common.ErrUnauthorized.Message,
			})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}
