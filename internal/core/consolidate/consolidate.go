// Package consolidate 把多筆食材行加總成一筆。
//
// 同單位直接相加，不同單位依序嘗試呼叫端給的比例、食材專屬規則、一般換算；
// 都不行時直接把數字相加並回傳警告。
package consolidate

import (
	"fmt"

	"meal-planner/internal/core/units"
	"meal-planner/internal/pkg/common"
)

// Combine 合併食材行，ratios 與 lines 平行，0 表示未知
//
// 換算缺口不記錄日誌，由呼叫端決定如何處理回傳的警告。
func Combine(name string, lines []common.IngredientLine, canonicalUnit string, ratios []float64) (common.IngredientLine, []string) {
	if len(lines) == 0 {
		return common.IngredientLine{}, nil
	}
	if name == "" {
		name = lines[0].Name
	}

	unit := units.NormalizeUnit(canonicalUnit)
	out := common.IngredientLine{
		IngredientID: lines[0].IngredientID,
		Name:         name,
		Unit:         unit,
	}

	var warnings []string
	total := 0.0
	for i, l := range lines {
		amount, ok := convertLine(name, l, unit, ratioAt(ratios, i))
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no conversion from %q to %q for %s; added %v as-is", l.Unit, unit, l.Name, l.Amount))
			amount = l.Amount
		}
		total += amount
		out.SourceRecipes = append(out.SourceRecipes, l.SourceRecipes...)
	}
	out.Amount = common.RoundTo(total, 4)
	return out, warnings
}

// Ratios 計算每筆食材行換算成 canonicalUnit 的比例，無法換算時為 0
func Ratios(name string, lines []common.IngredientLine, canonicalUnit string) []float64 {
	out := make([]float64, len(lines))
	for i, l := range lines {
		if r, ok := ratioFor(name, l, canonicalUnit); ok {
			out[i] = common.RoundTo(r, 6)
		}
	}
	return out
}

// PickUnit 為一組食材行挑選共同單位
//
// 從第一筆的單位開始，逐筆以 units.FindCommonUnit 收斂；遇到無法換算的
// 成員時保留目前的單位。回傳值一定是某個候選單位。
func PickUnit(name string, lines []common.IngredientLine) string {
	if len(lines) == 0 {
		return ""
	}
	current := units.NormalizeUnit(lines[0].Unit)
	for _, l := range lines[1:] {
		if u, ok := units.FindCommonUnit(name, current, l.Unit); ok {
			current = u
		}
	}
	return current
}

func ratioAt(ratios []float64, i int) float64 {
	if i < len(ratios) {
		return ratios[i]
	}
	return 0
}

func convertLine(name string, l common.IngredientLine, unit string, ratio float64) (float64, bool) {
	if units.SameUnit(l.Unit, unit) {
		return l.Amount, true
	}
	if ratio > 0 {
		return l.Amount * ratio, true
	}
	r, ok := ratioFor(name, l, unit)
	if !ok {
		return 0, false
	}
	return l.Amount * r, true
}

// ratioFor 先用食材行自己的名稱找規則，再用合併後的名稱
func ratioFor(name string, l common.IngredientLine, unit string) (float64, bool) {
	if r, ok := units.RatioTo(l.Name, l.Unit, unit); ok {
		return r, true
	}
	if name != l.Name {
		return units.RatioTo(name, l.Unit, unit)
	}
	return 0, false
}
