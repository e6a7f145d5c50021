// Package mealplan 讀取外部餐點計畫服務中的食譜與食材。
package mealplan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	ErrMealPlanNotFound = errors.New("meal plan not found")
	ErrNotConfigured    = errors.New("meal plan provider not configured")
)

// MealPlan 餐點計畫
type MealPlan struct {
	ID      string                   `json:"id"`
	UserID  string                   `json:"userId"`
	Recipes []common.RecipeSelection `json:"recipes"`
}

// Client 餐點計畫服務客戶端
type Client struct {
	client *resty.Client
}

// NewClient 創建客戶端，未設定 base_url 時回傳的客戶端一律回傳 ErrNotConfigured
func NewClient(cfg *config.MealPlanConfig) *Client {
	if cfg.BaseURL == "" {
		return &Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(1).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &Client{client: client}
}

// GetMealPlan 取得使用者的餐點計畫
func (c *Client) GetMealPlan(ctx context.Context, userID, mealPlanID string) (*MealPlan, error) {
	if c.client == nil {
		return nil, ErrNotConfigured
	}

	var plan MealPlan
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-User-ID", userID).
		SetPathParam("id", mealPlanID).
		SetResult(&plan).
		Get("/meal-plans/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meal plan %s: %w", mealPlanID, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrMealPlanNotFound
	default:
		common.LogWarn("餐點計畫服務回應錯誤",
			zap.String("meal_plan_id", mealPlanID),
			zap.Int("status", resp.StatusCode()),
		)
		return nil, fmt.Errorf("meal plan provider returned %d", resp.StatusCode())
	}

	if plan.UserID != "" && plan.UserID != userID {
		return nil, ErrMealPlanNotFound
	}
	for i := range plan.Recipes {
		if plan.Recipes[i].Multiplier <= 0 {
			plan.Recipes[i].Multiplier = 1
		}
	}
	return &plan, nil
}
