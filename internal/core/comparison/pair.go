// Package comparison 保存兩個食材名稱之間的比對結論。
//
// 鍵是排序後的正規化名稱對，(A,B) 與 (B,A) 永遠落在同一筆。結論一旦寫入
// 就不過期，重新比對時以 upsert 覆蓋。
package comparison

import (
	"fmt"
	"strings"
	"time"

	"meal-planner/internal/pkg/common"

	"golang.org/x/text/unicode/norm"
)

// Normalize 名稱正規化：NFC、小寫、去頭尾空白、合併連續空白
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(name))), " ")
}

// Pair 無序的名稱對，A <= B
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPair 正規化並排序
func NewPair(nameA, nameB string) Pair {
	a, b := Normalize(nameA), Normalize(nameB)
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Identical 兩邊正規化後是否相同
func (p Pair) Identical() bool {
	return p.A == p.B
}

// Has 名稱是否為其中一邊
func (p Pair) Has(name string) bool {
	n := Normalize(name)
	return p.A == n || p.B == n
}

// Other 回傳另一邊的名稱
func (p Pair) Other(name string) string {
	if Normalize(name) == p.A {
		return p.B
	}
	return p.A
}

func (p Pair) String() string {
	return fmt.Sprintf("(%s, %s)", p.A, p.B)
}

// Verdict 一次比對的結論，RatioA/RatioB 依呼叫端傳入名稱的順序
type Verdict struct {
	Status        common.Status
	CanonicalUnit string
	RatioA        *float64
	RatioB        *float64
}

// Entry 快取中的一筆比對結論，Ratio1 屬於 Pair.A，Ratio2 屬於 Pair.B
type Entry struct {
	Pair          Pair          `json:"pair"`
	Status        common.Status `json:"status"`
	CanonicalUnit string        `json:"canonicalUnit,omitempty"`
	Ratio1        *float64      `json:"conversionRatio1,omitempty"`
	Ratio2        *float64      `json:"conversionRatio2,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// NewEntry 依排序後的名稱對調整比例的方向
func NewEntry(nameA, nameB string, v Verdict) Entry {
	p := NewPair(nameA, nameB)
	e := Entry{
		Pair:          p,
		Status:        v.Status,
		CanonicalUnit: strings.TrimSpace(v.CanonicalUnit),
		Ratio1:        v.RatioA,
		Ratio2:        v.RatioB,
	}
	if Normalize(nameA) != p.A {
		e.Ratio1, e.Ratio2 = v.RatioB, v.RatioA
	}
	return e
}

// RatioFor 取得某一邊換算成 CanonicalUnit 的比例
func (e Entry) RatioFor(name string) (float64, bool) {
	n := Normalize(name)
	var r *float64
	switch n {
	case e.Pair.A:
		r = e.Ratio1
	case e.Pair.B:
		r = e.Ratio2
	}
	if r == nil || *r <= 0 {
		return 0, false
	}
	return *r, true
}

// HasConversion 是否帶有可用的單位換算資訊
func (e Entry) HasConversion() bool {
	return e.CanonicalUnit != "" && e.Ratio1 != nil && e.Ratio2 != nil && *e.Ratio1 > 0 && *e.Ratio2 > 0
}

// Float 取得浮點數指標
func Float(v float64) *float64 {
	return &v
}
