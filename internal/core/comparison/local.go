package comparison

import (
	"container/list"
	"sync"

	"meal-planner/internal/pkg/common"

	"go.uber.org/zap"
)

// localTier 行程內的比對快取層，容量滿時淘汰最久未使用的項目
type localTier struct {
	mu      sync.Mutex
	maxSize int
	items   map[Pair]*list.Element
	order   *list.List // 前端為最近使用
	stats   tierStats
}

// tierStats 快取統計
type tierStats struct {
	hits      int64
	misses    int64
	evictions int64
}

func newLocalTier(maxSize int) *localTier {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &localTier{
		maxSize: maxSize,
		items:   make(map[Pair]*list.Element),
		order:   list.New(),
	}
}

// get 取得快取，命中時移到最前端
func (t *localTier) get(p Pair) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.items[p]
	if !ok {
		t.stats.misses++
		return Entry{}, false
	}
	t.order.MoveToFront(el)
	t.stats.hits++
	return el.Value.(Entry), true
}

// set 寫入快取，已存在時覆蓋
func (t *localTier) set(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.items[e.Pair]; ok {
		el.Value = e
		t.order.MoveToFront(el)
		return
	}

	if t.order.Len() >= t.maxSize {
		t.evictLRU()
	}
	t.items[e.Pair] = t.order.PushFront(e)
}

// evictLRU 淘汰最久未使用的項目，呼叫端需持有鎖
func (t *localTier) evictLRU() {
	el := t.order.Back()
	if el == nil {
		return
	}
	p := t.order.Remove(el).(Entry).Pair
	delete(t.items, p)
	t.stats.evictions++
	common.LogDebug("比對快取已淘汰(LRU)", zap.Stringer("pair", p))
}

// snapshot 取得統計資訊
func (t *localTier) snapshot() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ratio := 0.0
	if total := t.stats.hits + t.stats.misses; total > 0 {
		ratio = float64(t.stats.hits) / float64(total)
	}
	return map[string]interface{}{
		"size":      len(t.items),
		"max_size":  t.maxSize,
		"hits":      t.stats.hits,
		"misses":    t.stats.misses,
		"evictions": t.stats.evictions,
		"hit_ratio": ratio,
	}
}
