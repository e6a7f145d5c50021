package units

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"meal-planner/internal/pkg/common"
)

// PackageSize 零售包裝規格
type PackageSize struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
	Packs  int     `json:"packs,omitempty"`
}

// PurchasePlan 購買數量計算結果
type PurchasePlan struct {
	PackageCount int          `json:"packageCount"`
	PackageSize  *PackageSize `json:"packageSize,omitempty"`
	NeededAmount float64      `json:"neededAmount"`
	NeededUnit   string       `json:"neededUnit"`
	Converted    bool         `json:"converted"`
	Reasoning    string       `json:"reasoning"`
}

const (
	numberExpr = `(\d+(?:\.\d+)?(?:/\d+)?)`
	weightExpr = `(oz|ounces?|lbs?|pounds?|kg|kilograms?|g|grams?)`
	volumeExpr = `(fl\.?\s*oz\.?|fluid\s+ounces?|ml|milliliters?|millilitres?|l|liters?|litres?|gal|gallons?|qt|quarts?|pt|pints?|cups?)`
	countExpr  = `(ct|count|pk|pack|each|ea|pcs?|pieces?)`
)

type sizePattern struct {
	re   *regexp.Regexp
	kind Type
}

// 依序比對：多件裝、重量、體積、計數
// 多件裝內的體積需先於重量比對，避免 "fl oz" 被當成 "oz"
var (
	multipackPattern = regexp.MustCompile(`(\d+)\s*(?:x|×|pack\s+of)\s*` + numberExpr + `\s*(?:` + volumeExpr + `|` + weightExpr + `)\b`)
	sizePatterns     = []sizePattern{
		{regexp.MustCompile(numberExpr + `\s*` + weightExpr + `\b`), Weight},
		{regexp.MustCompile(numberExpr + `\s*` + volumeExpr + `(?:\b|$)`), Volume},
		{regexp.MustCompile(`(\d+)\s*` + countExpr + `\b`), Count},
	}
)

// ParsePackageSize 從零售規格字串取出數量與單位
func ParsePackageSize(size string) (PackageSize, bool) {
	s := strings.ToLower(strings.TrimSpace(size))
	if s == "" {
		return PackageSize{}, false
	}

	if m := multipackPattern.FindStringSubmatch(s); m != nil {
		packs, err1 := strconv.Atoi(m[1])
		each, err2 := parseNumber(m[2])
		unit := m[3]
		if unit == "" {
			unit = m[4]
		}
		if err1 == nil && err2 == nil && packs > 0 && each > 0 {
			return PackageSize{Amount: float64(packs) * each, Unit: NormalizeUnit(unit), Packs: packs}, true
		}
	}

	// "12 fl oz" 在重量規則中不會命中，因為數字後面緊接的是 fl
	for _, p := range sizePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		amount, err := parseNumber(m[1])
		if err != nil || amount <= 0 {
			continue
		}
		unit := NormalizeUnit(m[2])
		if p.kind == Count {
			unit = "each"
		}
		return PackageSize{Amount: amount, Unit: unit}, true
	}
	return PackageSize{}, false
}

// PlanPurchase 計算需要購買幾包
//
// 包數為 ceil(所需量 / 每包量)，至少 1。規格無法解析或單位無法換算時
// 回傳 1 包並在 Reasoning 說明原因。
func PlanPurchase(ingredientName string, needed float64, unit, packageSize string) PurchasePlan {
	plan := PurchasePlan{
		PackageCount: 1,
		NeededAmount: needed,
		NeededUnit:   NormalizeUnit(unit),
	}

	pkg, ok := ParsePackageSize(packageSize)
	if !ok {
		plan.Reasoning = fmt.Sprintf("could not parse package size %q; defaulting to 1 package", packageSize)
		return plan
	}
	plan.PackageSize = &pkg

	converted, ok := ConvertFor(ingredientName, needed, unit, pkg.Unit)
	if !ok {
		plan.Reasoning = fmt.Sprintf("could not convert %s to %s for %s; defaulting to 1 package",
			displayUnit(plan.NeededUnit), pkg.Unit, ingredientName)
		return plan
	}
	plan.Converted = true

	ratio := converted / pkg.Amount
	if whole := math.Round(ratio); common.AlmostEqual(ratio, whole) {
		ratio = whole
	}
	count := int(math.Ceil(ratio))
	if count < 1 {
		count = 1
	}
	plan.PackageCount = count
	plan.Reasoning = fmt.Sprintf("need %s %s, package holds %s %s (%.2f packages), buying %d",
		formatAmount(converted), pkg.Unit, formatAmount(pkg.Amount), pkg.Unit, ratio, count)
	return plan
}

// parseNumber 解析小數或 "1/2" 這類分數
func parseNumber(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("invalid fraction %q", s)
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}

func displayUnit(u string) string {
	if u == "" {
		return "whole"
	}
	return u
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
