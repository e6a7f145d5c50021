package similarity

import (
	"context"

	"meal-planner/internal/core/comparison"
)

// PairRequest 送去外部分類的一組名稱對，Index 由呼叫端指定
type PairRequest struct {
	Index int    `json:"index"`
	NameA string `json:"ingredient1"`
	UnitA string `json:"unit1"`
	NameB string `json:"ingredient2"`
	UnitB string `json:"unit2"`
}

// ClassificationResult 單一名稱對的分類結果，未解析時 Verdict 無意義
type ClassificationResult struct {
	Index    int
	Resolved bool
	Verdict  comparison.Verdict
	Reason   string
}

// Resolved 建立已解析的結果
func Resolved(index int, v comparison.Verdict) ClassificationResult {
	return ClassificationResult{Index: index, Resolved: true, Verdict: v}
}

// Unresolved 建立未解析的結果
func Unresolved(index int, reason string) ClassificationResult {
	return ClassificationResult{Index: index, Reason: reason}
}

// Classifier 外部比對服務
//
// 一次處理一個批次。回傳 error 代表整個批次失敗；部分名稱對缺漏或格式錯誤
// 時應回傳 Unresolved 而不是 error。
type Classifier interface {
	ClassifyBatch(ctx context.Context, pairs []PairRequest) ([]ClassificationResult, error)
}
