package comparison

import (
	"context"
	"fmt"
	"time"

	"meal-planner/internal/infrastructure/metrics"
	"meal-planner/internal/pkg/common"

	"go.uber.org/zap"
)

// Store 比對結論的持久層
type Store interface {
	// GetComparisons 依名稱對批次查詢
	GetComparisons(ctx context.Context, pairs []Pair) ([]Entry, error)
	// GetComparisonsFor 查詢某個名稱的所有鄰居
	GetComparisonsFor(ctx context.Context, name string) ([]Entry, error)
	// GetComparisonsAmong 查詢兩邊都在 names 內的所有比對
	GetComparisonsAmong(ctx context.Context, names []string) ([]Entry, error)
	// UpsertComparison 依名稱對新增或覆蓋
	UpsertComparison(ctx context.Context, e Entry) error
}

// Cache 比對快取：本地層、Redis 層（可選）、持久層
type Cache struct {
	store  Store
	local  *localTier
	remote *RedisTier
	now    func() time.Time
}

// NewCache 創建比對快取，remote 可為 nil
func NewCache(store Store, localMaxSize int, remote *RedisTier) *Cache {
	return &Cache{
		store:  store,
		local:  newLocalTier(localMaxSize),
		remote: remote,
		now:    time.Now,
	}
}

// Get 查詢兩個名稱的比對結論，與參數順序無關
func (c *Cache) Get(ctx context.Context, nameA, nameB string) (Entry, bool, error) {
	p := NewPair(nameA, nameB)
	found, err := c.BatchGet(ctx, []Pair{p})
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := found[p]
	return e, ok, nil
}

// BatchGet 批次查詢，依序走本地、Redis、持久層並回填上層
func (c *Cache) BatchGet(ctx context.Context, pairs []Pair) (map[Pair]Entry, error) {
	out, missing := c.lookupTiers(ctx, dedupePairs(pairs))
	if len(missing) == 0 {
		return out, nil
	}

	entries, err := c.store.GetComparisons(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to load comparisons: %w", err)
	}
	c.record("store", len(entries), len(missing)-len(entries))
	for _, e := range entries {
		out[e.Pair] = e
	}
	c.fill(ctx, entries)
	return out, nil
}

// GetAllFor 取得某個名稱的所有已知比對，鍵為另一邊的正規化名稱
//
// 本地層無法判斷鄰居是否完整，一律查詢持久層。
func (c *Cache) GetAllFor(ctx context.Context, name string) (map[string]Entry, error) {
	n := Normalize(name)
	entries, err := c.store.GetComparisonsFor(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load comparisons for %q: %w", n, err)
	}

	out := make(map[string]Entry, len(entries))
	for _, e := range entries {
		out[e.Pair.Other(n)] = e
	}
	c.fillLocal(entries)
	return out, nil
}

// GetAllForNames 一次取得多個名稱彼此之間的鄰居表
//
// 只回傳兩邊都在 names 內的比對，結果為 name -> other -> Entry。
// 先查本地與 Redis 層，仍有缺漏時才以一次查詢向持久層取回整組名稱的比對。
func (c *Cache) GetAllForNames(ctx context.Context, names []string) (map[string]map[string]Entry, error) {
	normalized := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		n := Normalize(name)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}

	out := make(map[string]map[string]Entry, len(normalized))
	if len(normalized) < 2 {
		return out, nil
	}

	pairs := make([]Pair, 0, len(normalized)*(len(normalized)-1)/2)
	for i := range normalized {
		for j := i + 1; j < len(normalized); j++ {
			pairs = append(pairs, NewPair(normalized[i], normalized[j]))
		}
	}

	found, missing := c.lookupTiers(ctx, pairs)
	if len(missing) > 0 {
		entries, err := c.store.GetComparisonsAmong(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("failed to load comparisons among %d names: %w", len(normalized), err)
		}
		fresh := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if _, ok := found[e.Pair]; ok {
				continue
			}
			found[e.Pair] = e
			fresh = append(fresh, e)
		}
		c.record("store", len(fresh), len(missing)-len(fresh))
		c.fill(ctx, fresh)
	}

	for _, e := range found {
		if out[e.Pair.A] == nil {
			out[e.Pair.A] = make(map[string]Entry)
		}
		if out[e.Pair.B] == nil {
			out[e.Pair.B] = make(map[string]Entry)
		}
		out[e.Pair.A][e.Pair.B] = e
		out[e.Pair.B][e.Pair.A] = e
	}
	return out, nil
}

// lookupTiers 查詢本地與 Redis 層，回傳命中的條目與仍缺漏的名稱對
//
// pairs 必須已去重。Redis 失敗只記錄，缺漏交給持久層。
func (c *Cache) lookupTiers(ctx context.Context, pairs []Pair) (map[Pair]Entry, []Pair) {
	out := make(map[Pair]Entry, len(pairs))
	var missing []Pair
	for _, p := range pairs {
		if e, ok := c.local.get(p); ok {
			out[p] = e
			continue
		}
		missing = append(missing, p)
	}
	c.record("local", len(pairs)-len(missing), len(missing))
	if len(missing) == 0 || c.remote == nil {
		return out, missing
	}

	hits, err := c.remote.getMany(ctx, missing)
	if err != nil {
		common.LogWarn("Redis 比對快取讀取失敗", zap.Error(err), zap.Int("pairs", len(missing)))
		return out, missing
	}
	rest := missing[:0:0]
	for _, p := range missing {
		if e, ok := hits[p]; ok {
			out[p] = e
			c.local.set(e)
			continue
		}
		rest = append(rest, p)
	}
	c.record("redis", len(missing)-len(rest), len(rest))
	return out, rest
}

func dedupePairs(pairs []Pair) []Pair {
	seen := make(map[Pair]struct{}, len(pairs))
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Put 寫入比對結論，同一名稱對重複寫入結果相同
func (c *Cache) Put(ctx context.Context, nameA, nameB string, v Verdict) error {
	if !v.Status.Valid() {
		return fmt.Errorf("invalid comparison status %q", v.Status)
	}

	e := NewEntry(nameA, nameB, v)
	e.UpdatedAt = c.now().UTC()

	if err := c.store.UpsertComparison(ctx, e); err != nil {
		metrics.ComparisonWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upsert comparison %s: %w", e.Pair, err)
	}
	metrics.ComparisonWrites.WithLabelValues("ok").Inc()

	c.fill(ctx, []Entry{e})
	return nil
}

// GetStats 獲取快取統計信息
func (c *Cache) GetStats() map[string]interface{} {
	stats := c.local.snapshot()
	stats["redis_enabled"] = c.remote != nil
	return stats
}

// fill 回填本地與 Redis 層，Redis 失敗只記錄
func (c *Cache) fill(ctx context.Context, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	c.fillLocal(entries)
	if c.remote == nil {
		return
	}
	if err := c.remote.setMany(ctx, entries); err != nil {
		common.LogWarn("Redis 比對快取寫入失敗", zap.Error(err), zap.Int("entries", len(entries)))
	}
}

func (c *Cache) record(tier string, hits, misses int) {
	if hits > 0 {
		metrics.ComparisonLookups.WithLabelValues(tier, "hit").Add(float64(hits))
		common.LogCacheHit(tier, hits)
	}
	if misses > 0 {
		metrics.ComparisonLookups.WithLabelValues(tier, "miss").Add(float64(misses))
		common.LogCacheMiss(tier, misses)
	}
}

func (c *Cache) fillLocal(entries []Entry) {
	for _, e := range entries {
		c.local.set(e)
	}
}
