package units

import (
	"sort"
	"strings"
)

// rule 食材專屬換算：1 From = Factor To
type rule struct {
	Pattern string
	From    string
	To      string
	Factor  float64
}

// 比對時以較長的 pattern 優先
var ingredientRules = sortRules([]rule{
	{"lemon", "whole", "cup", 0.25},
	{"lime", "whole", "cup", 0.125},
	{"garlic", "clove", "tsp", 1},
	{"garlic", "head", "clove", 10},
	{"shallot", "whole", "tbsp", 3},
	{"onion", "whole", "cup", 1},
	{"green onion", "whole", "tbsp", 2},
	{"carrot", "whole", "cup", 0.5},
	{"celery", "stalk", "cup", 0.5},
	{"tomato", "whole", "cup", 0.75},
	{"tomato paste", "can", "oz", 6},
	{"butter", "stick", "cup", 0.5},
	{"butter", "stick", "oz", 4},
	{"butter", "cup", "oz", 8},
	{"flour", "cup", "oz", 4.25},
	{"sugar", "cup", "oz", 7.05},
	{"brown sugar", "cup", "oz", 7.5},
	{"powdered sugar", "cup", "oz", 4},
	{"honey", "cup", "oz", 12},
	{"maple syrup", "cup", "oz", 11},
	{"cheese", "cup", "oz", 4},
	{"parmesan", "cup", "oz", 3},
	{"rice", "cup", "oz", 6.5},
	{"oats", "cup", "oz", 3},
	{"chicken breast", "whole", "lb", 0.5},
	{"chicken thigh", "whole", "oz", 4},
	{"salmon", "fillet", "oz", 6},
	{"salmon fillet", "whole", "oz", 6},
	{"parsley", "bunch", "cup", 1},
	{"cilantro", "bunch", "cup", 1},
	{"basil", "bunch", "cup", 1},
	{"spinach", "bunch", "cup", 6},
})

func sortRules(rules []rule) []rule {
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].Pattern) > len(rules[j].Pattern)
	})
	return rules
}

// ConvertIngredientSpecific 依食材名稱套用專屬規則，允許跨類型換算
//
// 規則可正向或反向使用，兩端再接一般換算，例如 lemon 的 whole -> cup
// 可以得出 each -> tbsp。找不到可用規則時回傳 false。
func ConvertIngredientSpecific(ingredientName string, amount float64, from, to string) (float64, bool) {
	f, t := NormalizeUnit(from), NormalizeUnit(to)
	if f == t {
		return amount, true
	}

	name := strings.ToLower(ingredientName)
	for _, r := range ingredientRules {
		if !strings.Contains(name, r.Pattern) {
			continue
		}

		// 正向：from -> r.From -> r.To -> to
		if a, err := Convert(amount, f, r.From); err == nil {
			if v, err := Convert(a*r.Factor, r.To, t); err == nil {
				return v, true
			}
		}

		// 反向：from -> r.To -> r.From -> to
		if a, err := Convert(amount, f, r.To); err == nil {
			if v, err := Convert(a/r.Factor, r.From, t); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// 共同單位的候選順序
var commonUnitPreference = []string{"cup", "oz"}

// FindCommonUnit 為兩個不同單位的食材行挑選合併用的單位
//
// 依序嘗試 cup、oz、a、b，第一個兩邊都能換算的單位即為結果。
func FindCommonUnit(ingredientName, unitA, unitB string) (string, bool) {
	a, b := NormalizeUnit(unitA), NormalizeUnit(unitB)
	if a == b {
		return a, true
	}

	candidates := append(append([]string{}, commonUnitPreference...), a, b)
	for _, c := range candidates {
		if Convertible(ingredientName, a, c) && Convertible(ingredientName, b, c) {
			return c, true
		}
	}
	return "", false
}

// RatioTo 把一單位 from 換成 to 的倍率
func RatioTo(ingredientName, from, to string) (float64, bool) {
	return ConvertFor(ingredientName, 1, from, to)
}
