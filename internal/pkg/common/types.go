package common

import (
	"encoding/json"
	"sort"
	"time"
)

// Status 兩個食材名稱的比對結果
type Status string

const (
	StatusSame      Status = "same"
	StatusSimilar   Status = "similar"
	StatusDifferent Status = "different"
)

// Valid 檢查比對結果是否為已知值
func (s Status) Valid() bool {
	switch s {
	case StatusSame, StatusSimilar, StatusDifferent:
		return true
	}
	return false
}

// Connects 是否在比對圖上形成一條邊
func (s Status) Connects() bool {
	return s == StatusSame || s == StatusSimilar
}

// Decision 使用者對合併選項的決定
type Decision string

const (
	DecisionMerge        Decision = "merge"
	DecisionKeepSeparate Decision = "keep_separate"
)

// Valid 檢查決定是否為已知值
func (d Decision) Valid() bool {
	return d == DecisionMerge || d == DecisionKeepSeparate
}

// SourceRecipe 食材行的來源食譜
type SourceRecipe struct {
	RecipeID    string  `json:"recipeId"`
	RecipeTitle string  `json:"recipeTitle"`
	Amount      float64 `json:"amount"`
	Unit        string  `json:"unit"`
}

// IngredientLine 一筆待彙整的食材行
type IngredientLine struct {
	IngredientID  string         `json:"ingredientId"`
	Name          string         `json:"name"`
	Amount        float64        `json:"amount"`
	Unit          string         `json:"unit"`
	SourceRecipes []SourceRecipe `json:"sourceRecipes"`
}

// Clone 深拷貝食材行
func (l IngredientLine) Clone() IngredientLine {
	out := l
	out.SourceRecipes = append([]SourceRecipe(nil), l.SourceRecipes...)
	return out
}

// IngredientSet 排序後的食材 ID 集合，作為合併決定記憶的鍵
type IngredientSet []string

// NewIngredientSet 去重並排序
func NewIngredientSet(ids ...string) IngredientSet {
	seen := make(map[string]struct{}, len(ids))
	out := make(IngredientSet, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Key 集合的唯一字串表示
func (s IngredientSet) Key() string {
	data, _ := json.Marshal([]string(s))
	return string(data)
}

// MergeOption 一個待使用者確認的合併建議
type MergeOption struct {
	MergeID          string           `json:"mergeId"`
	IngredientIDs    IngredientSet    `json:"ingredientIds"`
	SuggestedName    string           `json:"suggestedName"`
	CanonicalUnit    string           `json:"canonicalUnit"`
	ConversionRatios []float64        `json:"conversionRatios"`
	TotalAmount      float64          `json:"totalAmount"`
	Members          []IngredientLine `json:"members"`
	Status           Status           `json:"status"`
	UserDecision     *Decision        `json:"userDecision"`
}

// ShoppingListStatus 購物清單狀態
type ShoppingListStatus string

const (
	ListStatusBuilding   ShoppingListStatus = "building"
	ListStatusActive     ShoppingListStatus = "active"
	ListStatusSuperseded ShoppingListStatus = "superseded"
	ListStatusDeleted    ShoppingListStatus = "deleted"
)

// ShoppingListItem 購物清單中的一項
type ShoppingListItem struct {
	ID              string         `json:"id"`
	IngredientID    string         `json:"ingredientId"`
	Name            string         `json:"name"`
	TotalAmount     float64        `json:"totalAmount"`
	Unit            string         `json:"unit"`
	RecipeBreakdown []SourceRecipe `json:"recipeBreakdown"`
	MergeOptionID   string         `json:"mergeOptionId,omitempty"`
}

// ShoppingList 彙整後的購物清單
type ShoppingList struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	MealPlanID   string             `json:"mealPlanId,omitempty"`
	Status       ShoppingListStatus `json:"status"`
	Items        []ShoppingListItem `json:"items"`
	MergeOptions []MergeOption      `json:"mergeOptions"`
	Warnings     []string           `json:"warnings,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// MergeDecisionRecord 使用者對某個食材集合的歷史決定
type MergeDecisionRecord struct {
	UserID        string        `json:"userId"`
	IngredientIDs IngredientSet `json:"ingredientIds"`
	Decision      Decision      `json:"decision"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// RecipeIngredient 食譜中的一行食材
type RecipeIngredient struct {
	IngredientID string  `json:"ingredientId"`
	Name         string  `json:"name" binding:"required"`
	Amount       float64 `json:"amount" binding:"gte=0"`
	Unit         string  `json:"unit"`
}

// RecipeSelection 被選入購物清單的食譜，Multiplier 為份量倍數
type RecipeSelection struct {
	RecipeID    string             `json:"recipeId" binding:"required"`
	Title       string             `json:"title"`
	Multiplier  float64            `json:"multiplier" binding:"gte=0"`
	Ingredients []RecipeIngredient `json:"ingredients" binding:"dive"`
}
