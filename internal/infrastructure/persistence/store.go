// Package persistence 定義購物清單、合併決定與比對快取的持久層介面。
package persistence

import (
	"context"
	"errors"
	"fmt"

	"meal-planner/internal/core/comparison"
	"meal-planner/internal/pkg/common"
)

var (
	ErrShoppingListNotFound = errors.New("shopping list not found")
	ErrNotListOwner         = errors.New("not the owner of this shopping list")
)

// Store 關聯式持久層
type Store interface {
	comparison.Store

	// SaveShoppingList 在單一交易內寫入新清單並將同一使用者的其他清單標為 superseded
	SaveShoppingList(ctx context.Context, list *common.ShoppingList) error
	// GetShoppingList 取得使用者的清單，已刪除視為不存在
	GetShoppingList(ctx context.Context, userID, listID string) (*common.ShoppingList, error)
	// GetActiveShoppingList 取得使用者目前的 active 清單
	GetActiveShoppingList(ctx context.Context, userID string) (*common.ShoppingList, error)
	// UpdateShoppingListResolution 在單一交易內替換清單項目與合併選項，並記住決定
	UpdateShoppingListResolution(ctx context.Context, list *common.ShoppingList, decisions []common.MergeDecisionRecord) error
	// DeleteShoppingList 軟刪除清單
	DeleteShoppingList(ctx context.Context, userID, listID string) error
	// GetMergeDecisions 取得使用者所有記住的決定，鍵為 IngredientSet.Key()
	GetMergeDecisions(ctx context.Context, userID string) (map[string]common.Decision, error)

	Ping(ctx context.Context) error
	Close() error
}

// EncodeJSON 將欄位序列化為 TEXT/JSONB 欄位內容
func EncodeJSON(v interface{}) (string, error) {
	data, err := common.ToJSON(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return data, nil
}

// DecodeJSON 解析 TEXT/JSONB 欄位內容
func DecodeJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	if err := common.ParseJSON(data, v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

// MergeOptionRow 合併選項的欄位內容
type MergeOptionRow struct {
	IngredientIDs    string
	IngredientKey    string
	ConversionRatios string
	Members          string
	UserDecision     *string
}

// EncodeMergeOption 將合併選項中的集合欄位序列化
func EncodeMergeOption(opt common.MergeOption) (MergeOptionRow, error) {
	var row MergeOptionRow
	var err error
	if row.IngredientIDs, err = EncodeJSON(opt.IngredientIDs); err != nil {
		return row, err
	}
	row.IngredientKey = opt.IngredientIDs.Key()
	ratios := opt.ConversionRatios
	if ratios == nil {
		ratios = []float64{}
	}
	if row.ConversionRatios, err = EncodeJSON(ratios); err != nil {
		return row, err
	}
	if row.Members, err = EncodeJSON(opt.Members); err != nil {
		return row, err
	}
	if opt.UserDecision != nil {
		d := string(*opt.UserDecision)
		row.UserDecision = &d
	}
	return row, nil
}

// DecodeMergeOption 還原合併選項中的集合欄位
func DecodeMergeOption(opt *common.MergeOption, row MergeOptionRow) error {
	if err := DecodeJSON(row.IngredientIDs, &opt.IngredientIDs); err != nil {
		return err
	}
	if err := DecodeJSON(row.ConversionRatios, &opt.ConversionRatios); err != nil {
		return err
	}
	if err := DecodeJSON(row.Members, &opt.Members); err != nil {
		return err
	}
	if row.UserDecision != nil && *row.UserDecision != "" {
		d := common.Decision(*row.UserDecision)
		opt.UserDecision = &d
	}
	return nil
}

// PrepareList 補上清單與項目的 ID
func PrepareList(list *common.ShoppingList) {
	if list.ID == "" {
		list.ID = common.GenerateUUID()
	}
	for i := range list.Items {
		if list.Items[i].ID == "" {
			list.Items[i].ID = common.GenerateUUID()
		}
		if list.Items[i].RecipeBreakdown == nil {
			list.Items[i].RecipeBreakdown = []common.SourceRecipe{}
		}
	}
}
