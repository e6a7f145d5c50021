// Package units 提供食材單位的類型判斷、換算與包裝規格計算。
//
// 體積統一經由 cup 換算，重量統一經由 lb 換算。計數單位之間只有
// whole/each/piece/item/count 等泛用單位可以互換，其餘計數單位只能換成自己。
package units

import (
	"errors"
	"fmt"
	"strings"
)

// Type 單位類型
type Type string

const (
	Volume Type = "volume"
	Weight Type = "weight"
	Count  Type = "count"
)

// ErrIncompatibleUnits 兩個單位無法直接換算
var ErrIncompatibleUnits = errors.New("incompatible units")

// 每單位等於多少 cup
var volumeToCup = map[string]float64{
	"tsp":    1.0 / 48,
	"tbsp":   1.0 / 16,
	"cup":    1,
	"fl oz":  1.0 / 8,
	"pint":   2,
	"quart":  4,
	"gallon": 16,
	"ml":     1 / 236.588,
	"l":      1000 / 236.588,
}

// 每單位等於多少 lb
var weightToPound = map[string]float64{
	"oz": 1.0 / 16,
	"lb": 1,
	"g":  1 / 453.592,
	"kg": 2.20462,
}

// 可以互換的泛用計數單位
var genericCount = map[string]bool{
	"":      true,
	"whole": true,
	"each":  true,
	"piece": true,
	"item":  true,
	"count": true,
}

// 單位別名，鍵為小寫
var unitAliases = map[string]string{
	// 體積 - 小
	"t":           "tsp",
	"ts":          "tsp",
	"tsp":         "tsp",
	"tsps":        "tsp",
	"teaspoon":    "tsp",
	"teaspoons":   "tsp",
	"tbsp":        "tbsp",
	"tbsps":       "tbsp",
	"tbs":         "tbsp",
	"tbl":         "tbsp",
	"tablespoon":  "tbsp",
	"tablespoons": "tbsp",

	// 體積 - 中
	"c":            "cup",
	"cup":          "cup",
	"cups":         "cup",
	"fl oz":        "fl oz",
	"fl. oz":       "fl oz",
	"fl. oz.":      "fl oz",
	"floz":         "fl oz",
	"fluid ounce":  "fl oz",
	"fluid ounces": "fl oz",
	"pt":           "pint",
	"pint":         "pint",
	"pints":        "pint",
	"qt":           "quart",
	"quart":        "quart",
	"quarts":       "quart",

	// 體積 - 大
	"gal":         "gallon",
	"gallon":      "gallon",
	"gallons":     "gallon",
	"l":           "l",
	"liter":       "l",
	"liters":      "l",
	"litre":       "l",
	"litres":      "l",
	"ml":          "ml",
	"milliliter":  "ml",
	"milliliters": "ml",
	"millilitre":  "ml",
	"millilitres": "ml",

	// 重量
	"oz":        "oz",
	"oz.":       "oz",
	"ounce":     "oz",
	"ounces":    "oz",
	"lb":        "lb",
	"lbs":       "lb",
	"lb.":       "lb",
	"pound":     "lb",
	"pounds":    "lb",
	"g":         "g",
	"gr":        "g",
	"gram":      "g",
	"grams":     "g",
	"kg":        "kg",
	"kilo":      "kg",
	"kilogram":  "kg",
	"kilograms": "kg",

	// 計數
	"whole":   "whole",
	"ea":      "each",
	"each":    "each",
	"pc":      "piece",
	"pcs":     "piece",
	"piece":   "piece",
	"pieces":  "piece",
	"item":    "item",
	"items":   "item",
	"ct":      "count",
	"count":   "count",
	"clove":   "clove",
	"cloves":  "clove",
	"head":    "head",
	"heads":   "head",
	"bunch":   "bunch",
	"bunches": "bunch",
	"stalk":   "stalk",
	"stalks":  "stalk",
	"sprig":   "sprig",
	"sprigs":  "sprig",
	"slice":   "slice",
	"slices":  "slice",
	"stick":   "stick",
	"sticks":  "stick",
	"can":     "can",
	"cans":    "can",
	"jar":     "jar",
	"jars":    "jar",
	"fillet":  "fillet",
	"fillets": "fillet",
	"pinch":   "pinch",
	"pinches": "pinch",
	"dash":    "dash",
	"dashes":  "dash",
	"pkg":     "package",
	"package": "package",
	"pack":    "package",
}

// NormalizeUnit 將單位別名轉為標準寫法，未知單位只做小寫與空白整理
func NormalizeUnit(unit string) string {
	trimmed := strings.TrimSpace(unit)
	// 大寫 T 在食譜慣例中是 tablespoon
	if trimmed == "T" || trimmed == "Tbsp" || trimmed == "TB" {
		return "tbsp"
	}
	u := strings.Join(strings.Fields(strings.ToLower(trimmed)), " ")
	if canonical, ok := unitAliases[u]; ok {
		return canonical
	}
	return u
}

// UnitType 回傳單位類型，未知單位視為計數
func UnitType(unit string) Type {
	u := NormalizeUnit(unit)
	if _, ok := volumeToCup[u]; ok {
		return Volume
	}
	if _, ok := weightToPound[u]; ok {
		return Weight
	}
	return Count
}

// SameUnit 兩個單位標準化後是否相同
func SameUnit(a, b string) bool {
	return NormalizeUnit(a) == NormalizeUnit(b)
}

// Convert 在同一類型內換算數量
func Convert(amount float64, from, to string) (float64, error) {
	f, t := NormalizeUnit(from), NormalizeUnit(to)
	if f == t {
		return amount, nil
	}

	ft, tt := UnitType(f), UnitType(t)
	if ft != tt {
		return 0, fmt.Errorf("%w: %s (%s) -> %s (%s)", ErrIncompatibleUnits, f, ft, t, tt)
	}

	switch ft {
	case Volume:
		return amount * volumeToCup[f] / volumeToCup[t], nil
	case Weight:
		return amount * weightToPound[f] / weightToPound[t], nil
	default:
		if genericCount[f] && genericCount[t] {
			return amount, nil
		}
		return 0, fmt.Errorf("%w: %s -> %s", ErrIncompatibleUnits, f, t)
	}
}

// ConvertFor 先嘗試食材專屬規則，再嘗試一般換算
func ConvertFor(ingredientName string, amount float64, from, to string) (float64, bool) {
	if v, ok := ConvertIngredientSpecific(ingredientName, amount, from, to); ok {
		return v, true
	}
	v, err := Convert(amount, from, to)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Convertible 是否能把 from 換成 to
func Convertible(ingredientName, from, to string) bool {
	_, ok := ConvertFor(ingredientName, 1, from, to)
	return ok
}
