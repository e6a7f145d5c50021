package aggregation

import (
	"fmt"
	"strings"

	"meal-planner/internal/core/comparison"
	"meal-planner/internal/core/units"
	"meal-planner/internal/pkg/common"
)

// 低於此值視為用完
const amountEpsilon = 1e-9

// lineKey 預先加總用的鍵：同一食材且同一單位
type lineKey struct {
	ingredient string
	unit       string
}

// ingredientIdentity 沒有食材 ID 時以正規化名稱代替
func ingredientIdentity(id, name string) string {
	if id != "" {
		return id
	}
	return "name:" + comparison.Normalize(name)
}

// flatten 展開食譜的食材行並套用份量倍數
func flatten(recipes []common.RecipeSelection) []common.IngredientLine {
	var out []common.IngredientLine
	for _, r := range recipes {
		mult := r.Multiplier
		if mult <= 0 {
			mult = 1
		}
		for _, ing := range r.Ingredients {
			name := strings.TrimSpace(ing.Name)
			if name == "" {
				continue
			}
			amount := common.RoundTo(ing.Amount*mult, 4)
			unit := units.NormalizeUnit(ing.Unit)
			out = append(out, common.IngredientLine{
				IngredientID: ingredientIdentity(ing.IngredientID, name),
				Name:         name,
				Amount:       amount,
				Unit:         unit,
				SourceRecipes: []common.SourceRecipe{{
					RecipeID:    r.RecipeID,
					RecipeTitle: r.Title,
					Amount:      amount,
					Unit:        unit,
				}},
			})
		}
	}
	return out
}

// presum 同一食材且單位相同的行直接相加，保留第一次出現的順序
func presum(lines []common.IngredientLine) []common.IngredientLine {
	index := make(map[lineKey]int, len(lines))
	var out []common.IngredientLine
	for _, l := range lines {
		l.Unit = units.NormalizeUnit(l.Unit)
		k := lineKey{ingredient: l.IngredientID, unit: l.Unit}
		if i, ok := index[k]; ok {
			out[i].Amount = common.RoundTo(out[i].Amount+l.Amount, 4)
			out[i].SourceRecipes = append(out[i].SourceRecipes, l.SourceRecipes...)
			continue
		}
		index[k] = len(out)
		out = append(out, l.Clone())
	}
	return out
}

// fromItems 將既有清單的項目轉回食材行
func fromItems(items []common.ShoppingListItem) []common.IngredientLine {
	out := make([]common.IngredientLine, 0, len(items))
	for _, item := range items {
		out = append(out, common.IngredientLine{
			IngredientID:  ingredientIdentity(item.IngredientID, item.Name),
			Name:          item.Name,
			Amount:        item.TotalAmount,
			Unit:          item.Unit,
			SourceRecipes: append([]common.SourceRecipe(nil), item.RecipeBreakdown...),
		})
	}
	return out
}

// subtractPantry 扣掉使用者手邊已有的食材，扣完的行直接移除
func subtractPantry(lines []common.IngredientLine, pantry []common.RecipeIngredient) ([]common.IngredientLine, []string) {
	var warnings []string
	for _, held := range pantry {
		if held.Amount <= 0 {
			continue
		}
		id := ingredientIdentity(held.IngredientID, held.Name)
		remaining := held.Amount
		for i := range lines {
			if remaining <= amountEpsilon {
				break
			}
			l := &lines[i]
			if l.IngredientID != id && comparison.Normalize(l.Name) != comparison.Normalize(held.Name) {
				continue
			}
			have, ok := units.ConvertFor(l.Name, remaining, held.Unit, l.Unit)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("pantry %s: no conversion from %q to %q", held.Name, held.Unit, l.Unit))
				continue
			}
			if have >= l.Amount {
				used, _ := units.ConvertFor(l.Name, l.Amount, l.Unit, held.Unit)
				remaining -= used
				l.Amount = 0
				continue
			}
			l.Amount = common.RoundTo(l.Amount-have, 4)
			remaining = 0
		}
	}

	out := lines[:0]
	for _, l := range lines {
		if l.Amount <= amountEpsilon {
			continue
		}
		out = append(out, l)
	}
	return out, warnings
}

// toItem 食材行轉為清單項目
func toItem(l common.IngredientLine, mergeID string) common.ShoppingListItem {
	breakdown := l.SourceRecipes
	if breakdown == nil {
		breakdown = []common.SourceRecipe{}
	}
	return common.ShoppingListItem{
		IngredientID:    l.IngredientID,
		Name:            l.Name,
		TotalAmount:     common.RoundTo(l.Amount, 4),
		Unit:            l.Unit,
		RecipeBreakdown: breakdown,
		MergeOptionID:   mergeID,
	}
}
