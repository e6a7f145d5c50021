// Package handlers 放置各處理器共用的回應工具。
package handlers

import (
	"context"
	"errors"
	"net/http"

	"meal-planner/internal/api/middleware"
	"meal-planner/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserID 取得 RequireUser 放入的使用者 ID
func UserID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

// BindError 請求格式或欄位驗證失敗
func BindError(c *gin.Context, err error) {
	common.LogWarn("請求格式無效",
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", requestid.Get(c)),
	)
	c.AbortWithStatusJSON(http.StatusBadRequest, common.ErrorResponse{
		Code:    common.ErrCodeValidation,
		Message: common.ErrValidation.Message,
		Details: err.Error(),
	})
}

// RespondError 將服務層錯誤轉為 ErrorResponse
func RespondError(c *gin.Context, err error) {
	resp, status := ToErrorResponse(err)
	if status >= http.StatusInternalServerError {
		common.LogError("請求處理失敗",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", requestid.Get(c)),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

// ToErrorResponse 錯誤對應的回應與狀態碼，僅在 debug 模式附上原始錯誤
func ToErrorResponse(err error) (common.ErrorResponse, int) {
	if common.IsValidationError(err) {
		return common.ErrorResponse{
			Code:    common.ErrCodeValidation,
			Message: err.Error(),
		}, http.StatusBadRequest
	}

	if ce, ok := common.AsCustomError(err); ok {
		resp := common.ErrorResponse{Code: ce.Code, Message: ce.Message}
		if ce.Err != nil && gin.IsDebugging() {
			resp.Details = ce.Err.Error()
		}
		return resp, ce.Status
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return common.ErrorResponse{
			Code:    common.ErrCodeGatewayTimeout,
			Message: common.ErrGatewayTimeout.Message,
		}, http.StatusGatewayTimeout
	}

	resp := common.ErrorResponse{
		Code:    common.ErrCodeInternalError,
		Message: common.ErrInternalError.Message,
	}
	if gin.IsDebugging() {
		resp.Details = err.Error()
	}
	return resp, http.StatusInternalServerError
}
