// Package shoppinglist 購物清單的 HTTP 處理器
package shoppinglist

import (
	"context"
	"net/http"

	"meal-planner/internal/api/handlers"
	"meal-planner/internal/core/aggregation"
	"meal-planner/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service 購物清單服務
type Service interface {
	Aggregate(ctx context.Context, req aggregation.AggregateRequest) (*common.ShoppingList, error)
	ApplyDecisions(ctx context.Context, userID, listID string, decisions []aggregation.DecisionInput) (*common.ShoppingList, error)
	PurchasePlan(ctx context.Context, userID, listID string, packageSizes map[string]string) ([]aggregation.PurchaseLine, error)
	Get(ctx context.Context, userID, listID string) (*common.ShoppingList, error)
	GetActive(ctx context.Context, userID string) (*common.ShoppingList, error)
	Delete(ctx context.Context, userID, listID string) error
}

// CreateRequest 從食譜或餐點計畫建立購物清單
type CreateRequest struct {
	MealPlanID          string                    `json:"mealPlanId"`
	Recipes             []common.RecipeSelection  `json:"recipes" binding:"dive"`
	IncludeExistingList bool                      `json:"includeExistingList"`
	Pantry              []common.RecipeIngredient `json:"pantry" binding:"dive"`
	DeferClassification bool                      `json:"deferClassification"`
}

// DecisionsRequest 一次回答多個合併選項
type DecisionsRequest struct {
	Decisions []aggregation.DecisionInput `json:"decisions" binding:"required,min=1,dive"`
}

// PurchasePlanRequest 項目 ID 對應零售包裝規格，例如 "16 oz"
type PurchasePlanRequest struct {
	PackageSizes map[string]string `json:"packageSizes" binding:"required,min=1"`
}

// PurchasePlanResponse 購買建議
type PurchasePlanResponse struct {
	ListID string                     `json:"listId"`
	Lines  []aggregation.PurchaseLine `json:"lines"`
}

// Handler 購物清單處理器
type Handler struct {
	service Service
}

// NewHandler 創建購物清單處理器
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Register 註冊路由，group 需已套用 RequireUser
func (h *Handler) Register(group *gin.RouterGroup) {
	group.POST("", h.Create)
	group.GET("/active", h.GetActive)
	group.GET("/:id", h.Get)
	group.DELETE("/:id", h.Delete)
	group.POST("/:id/decisions", h.ApplyDecisions)
	group.POST("/:id/purchase-plan", h.PurchasePlan)
}

// Create 彙整食譜並建立新的 active 清單
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BindError(c, err)
		return
	}

	userID := handlers.UserID(c)
	common.LogInfo("開始彙整購物清單",
		zap.String("user_id", userID),
		zap.String("meal_plan_id", req.MealPlanID),
		zap.Int("recipes", len(req.Recipes)),
		zap.String("request_id", requestid.Get(c)),
	)

	list, err := h.service.Aggregate(c.Request.Context(), aggregation.AggregateRequest{
		UserID:              userID,
		MealPlanID:          req.MealPlanID,
		Recipes:             req.Recipes,
		IncludeExistingList: req.IncludeExistingList,
		Pantry:              req.Pantry,
		DeferClassification: req.DeferClassification,
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

// Get 取得清單
func (h *Handler) Get(c *gin.Context) {
	list, err := h.service.Get(c.Request.Context(), handlers.UserID(c), c.Param("id"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetActive 取得目前的 active 清單
func (h *Handler) GetActive(c *gin.Context) {
	list, err := h.service.GetActive(c.Request.Context(), handlers.UserID(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Delete 軟刪除清單
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), handlers.UserID(c), c.Param("id")); err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ApplyDecisions 套用合併決定
func (h *Handler) ApplyDecisions(c *gin.Context) {
	var req DecisionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BindError(c, err)
		return
	}

	list, err := h.service.ApplyDecisions(c.Request.Context(), handlers.UserID(c), c.Param("id"), req.Decisions)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// PurchasePlan 依包裝規格計算購買數量
func (h *Handler) PurchasePlan(c *gin.Context) {
	var req PurchasePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BindError(c, err)
		return
	}

	listID := c.Param("id")
	lines, err := h.service.PurchasePlan(c.Request.Context(), handlers.UserID(c), listID, req.PackageSizes)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PurchasePlanResponse{ListID: listID, Lines: lines})
}
