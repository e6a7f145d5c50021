// Package classifier 透過 LLM 判斷食材名稱對是否為同一樣東西。
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"meal-planner/internal/core/ai/provider"
	"meal-planner/internal/core/comparison"
	"meal-planner/internal/core/similarity"
	"meal-planner/internal/core/units"
	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var _ similarity.Classifier = (*Classifier)(nil)

const systemPrompt = `You compare grocery ingredient names for a shopping list.
For each numbered pair decide:
- "same": the same purchasable item, only spelled or described differently (e.g. "scallion" and "green onion").
- "similar": different items that a shopper might reasonably buy as one (e.g. "brown sugar" and "white sugar").
- "different": anything else.
When status is "same" or "similar" and both amounts can be expressed in one unit, also give
"canonicalUnit" and the factors that convert one unit of each ingredient into it
("conversionRatio1" for ingredient1, "conversionRatio2" for ingredient2). Omit them otherwise.
Reply with JSON only: {"results":[{"index":0,"status":"same","canonicalUnit":"cup","conversionRatio1":1,"conversionRatio2":0.0625}]}`

// Classifier 以 AI 提供者實作 similarity.Classifier
type Classifier struct {
	provider provider.Provider
	limiter  *rate.Limiter
}

// NewClassifier 創建分類器，RequestsPerSecond 為 0 時不限速
func NewClassifier(p provider.Provider, cfg *config.ClassifierConfig) *Classifier {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Classifier{
		provider: p,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// ClassifyBatch 一次請求分類一個批次
func (c *Classifier) ClassifyBatch(ctx context.Context, pairs []similarity.PairRequest) ([]similarity.ClassificationResult, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	prompt, err := BuildPrompt(pairs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.provider.Generate(ctx, &provider.Request{
		Messages: []provider.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		JSONMode: true,
	})
	common.LogAICall(c.provider.GetModel(), len(pairs), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	results, err := ParseBatchResponse(resp.Content, pairs)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// BuildPrompt 將名稱對編成模型輸入
func BuildPrompt(pairs []similarity.PairRequest) (string, error) {
	data, err := common.ToJSON(pairs)
	if err != nil {
		return "", fmt.Errorf("failed to encode pairs: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Classify these %d ingredient pairs:\n", len(pairs))
	b.WriteString(data)
	return b.String(), nil
}

// rawResult 模型回傳的單筆結果
type rawResult struct {
	Index            *int     `json:"index"`
	Status           string   `json:"status"`
	CanonicalUnit    string   `json:"canonicalUnit"`
	ConversionRatio1 *float64 `json:"conversionRatio1"`
	ConversionRatio2 *float64 `json:"conversionRatio2"`
}

// ParseBatchResponse 解析模型回覆
//
// 找不到 JSON 陣列時整批失敗。單筆格式錯誤、重複或缺漏的 index 只會讓
// 該名稱對回傳 Unresolved。
func ParseBatchResponse(content string, pairs []similarity.PairRequest) ([]similarity.ClassificationResult, error) {
	raw, ok := common.ExtractJSONArray(content)
	if !ok {
		return nil, fmt.Errorf("no JSON array in classifier response")
	}

	var items []json.RawMessage
	if err := common.ParseJSON(raw, &items); err != nil {
		if err := common.ParseJSON(common.QuoteJSONKeys(raw), &items); err != nil {
			return nil, fmt.Errorf("failed to decode classifier response: %w", err)
		}
	}

	byIndex := make(map[int]int, len(pairs))
	for pos, p := range pairs {
		byIndex[p.Index] = pos
	}

	results := make([]similarity.ClassificationResult, len(pairs))
	filled := make([]bool, len(pairs))
	for _, item := range items {
		var r rawResult
		if err := common.ParseJSONBytes(item, &r); err != nil || r.Index == nil {
			common.LogWarn("略過無法解析的分類結果", zap.String("item", string(item)))
			continue
		}
		pos, ok := byIndex[*r.Index]
		if !ok {
			common.LogWarn("分類結果 index 超出範圍", zap.Int("index", *r.Index))
			continue
		}
		if filled[pos] {
			common.LogWarn("分類結果 index 重複", zap.Int("index", *r.Index))
			results[pos] = similarity.Unresolved(*r.Index, "duplicate index in response")
			continue
		}
		filled[pos] = true
		results[pos] = toResult(*r.Index, r)
	}

	for pos, p := range pairs {
		if !filled[pos] {
			results[pos] = similarity.Unresolved(p.Index, "missing from response")
		}
	}
	return results, nil
}

func toResult(index int, r rawResult) similarity.ClassificationResult {
	status := common.Status(strings.ToLower(strings.TrimSpace(r.Status)))
	if !status.Valid() {
		return similarity.Unresolved(index, fmt.Sprintf("unknown status %q", r.Status))
	}

	v := comparison.Verdict{Status: status}
	if status == common.StatusDifferent {
		return similarity.Resolved(index, v)
	}

	unit := units.NormalizeUnit(r.CanonicalUnit)
	hasRatios := r.ConversionRatio1 != nil || r.ConversionRatio2 != nil
	switch {
	case !hasRatios:
		// 沒有換算資訊也是有效的結論
	case unit == "":
		return similarity.Unresolved(index, "conversion ratios without canonical unit")
	case r.ConversionRatio1 == nil || r.ConversionRatio2 == nil ||
		*r.ConversionRatio1 <= 0 || *r.ConversionRatio2 <= 0:
		return similarity.Unresolved(index, "conversion ratios must both be positive")
	default:
		v.CanonicalUnit = unit
		v.RatioA = comparison.Float(*r.ConversionRatio1)
		v.RatioB = comparison.Float(*r.ConversionRatio2)
	}
	return similarity.Resolved(index, v)
}
