// Package aggregation 把多份食譜的食材彙整成一份購物清單，並套用使用者的合併決定。
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"meal-planner/internal/core/consolidate"
	"meal-planner/internal/core/similarity"
	"meal-planner/internal/core/units"
	"meal-planner/internal/infrastructure/mealplan"
	"meal-planner/internal/infrastructure/metrics"
	"meal-planner/internal/infrastructure/persistence"
	"meal-planner/internal/pkg/common"

	"go.uber.org/zap"
)

// Detector 食材相似度偵測
type Detector interface {
	Detect(ctx context.Context, lines []common.IngredientLine, decisions map[string]common.Decision, opts similarity.DetectOptions) (*similarity.Result, error)
}

// WarmQueue 背景快取預熱
type WarmQueue interface {
	Enqueue(lines []common.IngredientLine) bool
}

// MealPlanSource 餐點計畫來源
type MealPlanSource interface {
	GetMealPlan(ctx context.Context, userID, mealPlanID string) (*mealplan.MealPlan, error)
}

// AggregateRequest 彙整請求
type AggregateRequest struct {
	UserID     string
	MealPlanID string
	Recipes    []common.RecipeSelection
	// IncludeExistingList 把目前 active 清單的項目一併加總
	IncludeExistingList bool
	// Pantry 先扣掉手邊已有的食材
	Pantry []common.RecipeIngredient
	// DeferClassification 本次只用快取結論，未知的名稱對交給背景預熱
	DeferClassification bool
}

// DecisionInput 單一合併選項的決定
type DecisionInput struct {
	MergeID  string          `json:"mergeId" binding:"required"`
	Decision common.Decision `json:"decision" binding:"required,oneof=merge keep_separate"`
}

// PurchaseLine 單一項目的購買建議
type PurchaseLine struct {
	ItemID      string             `json:"itemId"`
	Name        string             `json:"name"`
	PackageSize string             `json:"packageSize"`
	Plan        units.PurchasePlan `json:"plan"`
}

// Service 購物清單彙整服務
type Service struct {
	store     persistence.Store
	detector  Detector
	warmer    WarmQueue
	mealPlans MealPlanSource
}

// NewService 創建彙整服務，warmer 與 mealPlans 可為 nil
func NewService(store persistence.Store, detector Detector, warmer WarmQueue, mealPlans MealPlanSource) *Service {
	return &Service{
		store:     store,
		detector:  detector,
		warmer:    warmer,
		mealPlans: mealPlans,
	}
}

// Aggregate 產生新的購物清單並取代使用者目前的 active 清單
//
// 任何持久層錯誤都會讓整個彙整失敗且不寫入任何東西。
func (s *Service) Aggregate(ctx context.Context, req AggregateRequest) (list *common.ShoppingList, err error) {
	start := time.Now()
	defer func() { observe("aggregate", start, err) }()

	if req.UserID == "" {
		return nil, common.NewValidationError("userId is required")
	}
	recipes := req.Recipes
	if len(recipes) == 0 {
		if req.MealPlanID == "" {
			return nil, common.NewValidationError("recipes or mealPlanId is required")
		}
		if recipes, err = s.loadMealPlan(ctx, req.UserID, req.MealPlanID); err != nil {
			return nil, err
		}
	}

	lines := flatten(recipes)
	if req.IncludeExistingList {
		existing, err := s.store.GetActiveShoppingList(ctx, req.UserID)
		switch {
		case err == nil:
			lines = append(fromItems(existing.Items), lines...)
		case errors.Is(err, persistence.ErrShoppingListNotFound):
		default:
			return nil, common.ErrAggregationFailed.Wrap(err)
		}
	}
	lines = presum(lines)

	var warnings []string
	if len(req.Pantry) > 0 {
		var pantryWarnings []string
		lines, pantryWarnings = subtractPantry(lines, req.Pantry)
		warnings = append(warnings, pantryWarnings...)
	}

	decisions, err := s.store.GetMergeDecisions(ctx, req.UserID)
	if err != nil {
		return nil, common.ErrAggregationFailed.Wrap(err)
	}

	opts := similarity.DetectOptions{CachedOnly: req.DeferClassification}
	res, err := s.detector.Detect(ctx, lines, decisions, opts)
	if err != nil {
		return nil, common.ErrAggregationFailed.Wrap(err)
	}
	if req.DeferClassification && s.warmer != nil && res.Stats.UnresolvedPairs > 0 {
		s.warmer.Enqueue(lines)
	}

	list = &common.ShoppingList{
		UserID:       req.UserID,
		MealPlanID:   req.MealPlanID,
		Status:       common.ListStatusBuilding,
		MergeOptions: res.SuggestedMerges,
		Warnings:     append(warnings, res.Warnings...),
	}
	if list.MergeOptions == nil {
		list.MergeOptions = []common.MergeOption{}
	}
	for _, l := range res.AutoMerged {
		list.Items = append(list.Items, toItem(l, ""))
	}
	for _, l := range res.NoMerge {
		list.Items = append(list.Items, toItem(l, ""))
	}
	list.Items = append(list.Items, materialize(list.MergeOptions)...)

	if err := s.store.SaveShoppingList(ctx, list); err != nil {
		return nil, common.ErrAggregationFailed.Wrap(err)
	}

	common.LogInfo("購物清單彙整完成",
		zap.String("user_id", req.UserID),
		zap.String("list_id", list.ID),
		zap.Int("items", len(list.Items)),
		zap.Int("merge_options", len(list.MergeOptions)),
		zap.Bool("deferred", req.DeferClassification),
	)
	return list, nil
}

// ApplyDecisions 套用合併決定並記住，可重新回答先前的決定
func (s *Service) ApplyDecisions(ctx context.Context, userID, listID string, decisions []DecisionInput) (list *common.ShoppingList, err error) {
	start := time.Now()
	defer func() { observe("apply_decisions", start, err) }()

	if len(decisions) == 0 {
		return nil, common.NewValidationError("decisions must not be empty")
	}
	for _, d := range decisions {
		if !d.Decision.Valid() {
			return nil, common.NewValidationError(fmt.Sprintf("invalid decision %q for %s", d.Decision, d.MergeID))
		}
	}

	list, err = s.getList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(list.MergeOptions))
	for i, opt := range list.MergeOptions {
		byID[opt.MergeID] = i
	}

	now := time.Now().UTC()
	records := make([]common.MergeDecisionRecord, 0, len(decisions))
	for _, d := range decisions {
		i, ok := byID[d.MergeID]
		if !ok {
			return nil, common.ErrMergeOptionNotFound.WithMessage(fmt.Sprintf("合併選項不存在: %s", d.MergeID))
		}
		decision := d.Decision
		list.MergeOptions[i].UserDecision = &decision
		records = append(records, common.MergeDecisionRecord{
			UserID:        userID,
			IngredientIDs: list.MergeOptions[i].IngredientIDs,
			Decision:      decision,
			UpdatedAt:     now,
		})
	}

	// 以基礎項目加上每個選項目前的決定重新計算
	items := make([]common.ShoppingListItem, 0, len(list.Items))
	for _, item := range list.Items {
		if item.MergeOptionID == "" {
			items = append(items, item)
		}
	}
	list.Items = append(items, materialize(list.MergeOptions)...)

	if err := s.store.UpdateShoppingListResolution(ctx, list, records); err != nil {
		if errors.Is(err, persistence.ErrShoppingListNotFound) {
			return nil, common.ErrShoppingListNotFound
		}
		return nil, common.ErrInternalError.Wrap(err)
	}

	common.LogInfo("合併決定已套用",
		zap.String("user_id", userID),
		zap.String("list_id", listID),
		zap.Int("decisions", len(records)),
	)
	return list, nil
}

// PurchasePlan 依零售包裝規格計算每個項目要買幾份
//
// packageSizes 以項目 ID 為鍵，沒有提供規格的項目不列入。
func (s *Service) PurchasePlan(ctx context.Context, userID, listID string, packageSizes map[string]string) ([]PurchaseLine, error) {
	list, err := s.getList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(list.Items))
	for _, item := range list.Items {
		known[item.ID] = true
	}
	for id := range packageSizes {
		if !known[id] {
			return nil, common.NewValidationError(fmt.Sprintf("unknown item %q", id))
		}
	}

	out := make([]PurchaseLine, 0, len(packageSizes))
	for _, item := range list.Items {
		size, ok := packageSizes[item.ID]
		if !ok {
			continue
		}
		out = append(out, PurchaseLine{
			ItemID:      item.ID,
			Name:        item.Name,
			PackageSize: size,
			Plan:        units.PlanPurchase(item.Name, item.TotalAmount, item.Unit, size),
		})
	}
	return out, nil
}

// Get 取得使用者的清單
func (s *Service) Get(ctx context.Context, userID, listID string) (*common.ShoppingList, error) {
	return s.getList(ctx, userID, listID)
}

// GetActive 取得使用者目前的 active 清單
func (s *Service) GetActive(ctx context.Context, userID string) (*common.ShoppingList, error) {
	list, err := s.store.GetActiveShoppingList(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return list, nil
}

// Delete 軟刪除清單
func (s *Service) Delete(ctx context.Context, userID, listID string) error {
	if err := s.store.DeleteShoppingList(ctx, userID, listID); err != nil {
		return mapStoreError(err)
	}
	common.LogInfo("購物清單已刪除", zap.String("user_id", userID), zap.String("list_id", listID))
	return nil
}

func (s *Service) getList(ctx context.Context, userID, listID string) (*common.ShoppingList, error) {
	list, err := s.store.GetShoppingList(ctx, userID, listID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return list, nil
}

func (s *Service) loadMealPlan(ctx context.Context, userID, mealPlanID string) ([]common.RecipeSelection, error) {
	if s.mealPlans == nil {
		return nil, common.ErrMealPlanUnavailable.Wrap(mealplan.ErrNotConfigured)
	}
	plan, err := s.mealPlans.GetMealPlan(ctx, userID, mealPlanID)
	switch {
	case errors.Is(err, mealplan.ErrMealPlanNotFound):
		return nil, common.NewError(common.ErrCodeNotFound, "餐點計畫不存在", http.StatusNotFound, err)
	case err != nil:
		return nil, common.ErrMealPlanUnavailable.Wrap(err)
	}
	if len(plan.Recipes) == 0 {
		return nil, common.NewValidationError("meal plan has no recipes")
	}
	return plan.Recipes, nil
}

// materialize 依決定展開合併選項：merge 合成一項，其餘保留各成員
func materialize(options []common.MergeOption) []common.ShoppingListItem {
	var items []common.ShoppingListItem
	for _, opt := range options {
		if opt.UserDecision != nil && *opt.UserDecision == common.DecisionMerge {
			merged, warnings := consolidate.Combine(opt.SuggestedName, opt.Members, opt.CanonicalUnit, opt.ConversionRatios)
			for _, w := range warnings {
				common.LogWarn("單位換算缺口，直接相加", zap.String("merge_id", opt.MergeID), zap.String("detail", w))
			}
			items = append(items, toItem(merged, opt.MergeID))
			continue
		}
		for _, m := range opt.Members {
			items = append(items, toItem(m, opt.MergeID))
		}
	}
	return items
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrShoppingListNotFound):
		return common.ErrShoppingListNotFound
	case errors.Is(err, persistence.ErrNotListOwner):
		return common.ErrForbidden.WithMessage("無權存取此購物清單")
	default:
		return common.ErrInternalError.Wrap(err)
	}
}

func observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.AggregationDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
