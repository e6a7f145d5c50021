// Package similarity 判斷一批食材行中哪些指的是同一樣要買的東西。
//
// 先查比對快取，只有未知的名稱對才送去外部分類，結果寫回快取後以
// 不相交集合求出連通的比對群組。
package similarity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meal-planner/internal/core/comparison"
	"meal-planner/internal/core/consolidate"
	"meal-planner/internal/core/units"
	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/infrastructure/metrics"
	"meal-planner/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine 食材相似度偵測
type Engine struct {
	cache         *comparison.Cache
	classifier    Classifier
	batchSize     int
	maxConcurrent int
	newID         func() string
}

// NewEngine 創建偵測引擎，classifier 為 nil 時只使用快取
func NewEngine(cache *comparison.Cache, classifier Classifier, cfg *config.ClassifierConfig) *Engine {
	batch := cfg.BatchSize
	if batch <= 0 || batch > config.MaxBatchSize {
		batch = config.MaxBatchSize
	}
	concurrent := cfg.MaxConcurrentBatches
	if concurrent <= 0 || concurrent > config.MaxConcurrentBatchLimit {
		concurrent = config.MaxConcurrentBatchLimit
	}
	return &Engine{
		cache:         cache,
		classifier:    classifier,
		batchSize:     batch,
		maxConcurrent: concurrent,
		newID:         common.GenerateUUID,
	}
}

// DetectOptions 偵測選項
type DetectOptions struct {
	// CachedOnly 只使用快取中的結論，未知的名稱對本輪視為不同
	CachedOnly bool
}

// Stats 一次偵測的統計
type Stats struct {
	Lines           int `json:"lines"`
	Names           int `json:"names"`
	CachedPairs     int `json:"cachedPairs"`
	ClassifiedPairs int `json:"classifiedPairs"`
	UnresolvedPairs int `json:"unresolvedPairs"`
	SkippedPairs    int `json:"skippedPairs"`
	Batches         int `json:"batches"`
	FailedBatches   int `json:"failedBatches"`
	AutoGroups      int `json:"autoGroups"`
	SuggestedGroups int `json:"suggestedGroups"`
}

// Result 偵測結果的三個分組
type Result struct {
	AutoMerged      []common.IngredientLine `json:"autoMerged"`
	SuggestedMerges []common.MergeOption    `json:"suggestedMerges"`
	NoMerge         []common.IngredientLine `json:"noMerge"`
	Warnings        []string                `json:"warnings,omitempty"`
	Stats           Stats                   `json:"stats"`
}

// Detect 將食材行分為自動合併、建議合併與不合併三組
//
// decisions 以排序後的食材 ID 集合為鍵，用來預填建議合併的使用者決定。
// 單一批次失敗只會讓該批名稱對本輪視為不同；快取寫入失敗則整體回傳錯誤。
func (e *Engine) Detect(ctx context.Context, lines []common.IngredientLine, decisions map[string]common.Decision, opts DetectOptions) (*Result, error) {
	res := &Result{}
	res.Stats.Lines = len(lines)
	if len(lines) == 0 {
		return res, nil
	}

	g := newMatchGraph(lines)
	res.Stats.Names = len(g.names)

	if len(g.names) > 1 {
		neighbors, err := e.cache.GetAllForNames(ctx, g.names)
		if err != nil {
			return nil, fmt.Errorf("failed to prefetch comparisons: %w", err)
		}

		uncached := g.resolveCached(neighbors, &res.Stats)
		if len(uncached) > 0 {
			if opts.CachedOnly || e.classifier == nil {
				res.Stats.UnresolvedPairs += len(uncached)
			} else if err := e.classify(ctx, g, uncached, &res.Stats); err != nil {
				return nil, err
			}
		}
	}

	e.buildGroups(g, lines, decisions, res)

	common.LogInfo("食材比對完成",
		zap.Int("lines", res.Stats.Lines),
		zap.Int("names", res.Stats.Names),
		zap.Int("cached_pairs", res.Stats.CachedPairs),
		zap.Int("classified_pairs", res.Stats.ClassifiedPairs),
		zap.Int("unresolved_pairs", res.Stats.UnresolvedPairs),
		zap.Int("failed_batches", res.Stats.FailedBatches),
		zap.Int("auto_groups", res.Stats.AutoGroups),
		zap.Int("suggested_groups", res.Stats.SuggestedGroups),
	)
	return res, nil
}

// classify 分批送出未知的名稱對，同時最多 maxConcurrent 個批次
func (e *Engine) classify(ctx context.Context, g *matchGraph, pairs []comparison.Pair, stats *Stats) error {
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(e.maxConcurrent)

	for start, n := 0, 0; start < len(pairs); start, n = start+e.batchSize, n+1 {
		end := start + e.batchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]
		batchNo := n
		grp.Go(func() error {
			return e.runBatch(gctx, g, batchNo, batch, stats)
		})
	}
	return grp.Wait()
}

// runBatch 執行單一批次，每個解析成功的結果立即寫入快取
func (e *Engine) runBatch(ctx context.Context, g *matchGraph, batchNo int, batch []comparison.Pair, stats *Stats) error {
	reqs := make([]PairRequest, len(batch))
	for i, p := range batch {
		reqs[i] = PairRequest{
			Index: i,
			NameA: p.A,
			UnitA: g.unitOf[p.A],
			NameB: p.B,
			UnitB: g.unitOf[p.B],
		}
	}

	start := time.Now()
	results, err := e.classifier.ClassifyBatch(ctx, reqs)
	metrics.ClassifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ClassifierBatches.WithLabelValues("failed").Inc()
		common.LogWarn("比對批次失敗，本輪不合併",
			zap.Int("batch", batchNo),
			zap.Int("pairs", len(batch)),
			zap.Error(err),
		)
		g.updateStats(stats, func(s *Stats) {
			s.Batches++
			s.FailedBatches++
			s.UnresolvedPairs += len(batch)
		})
		return nil
	}

	seen := make(map[int]bool, len(results))
	resolved := 0
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(batch) || seen[r.Index] {
			continue
		}
		if !r.Resolved || !r.Verdict.Status.Valid() {
			continue
		}
		seen[r.Index] = true

		p := batch[r.Index]
		if err := e.cache.Put(ctx, p.A, p.B, r.Verdict); err != nil {
			return fmt.Errorf("failed to cache comparison %s: %w", p, err)
		}
		g.record(comparison.NewEntry(p.A, p.B, r.Verdict))
		metrics.ClassifierPairs.WithLabelValues(string(r.Verdict.Status)).Inc()
		resolved++
	}

	unresolved := len(batch) - resolved
	outcome := "ok"
	if unresolved > 0 {
		outcome = "partial"
		metrics.ClassifierPairs.WithLabelValues("unresolved").Add(float64(unresolved))
		common.LogWarn("比對批次部分未解析",
			zap.Int("batch", batchNo),
			zap.Int("pairs", len(batch)),
			zap.Int("unresolved", unresolved),
		)
	}
	metrics.ClassifierBatches.WithLabelValues(outcome).Inc()

	g.updateStats(stats, func(s *Stats) {
		s.Batches++
		s.ClassifiedPairs += resolved
		s.UnresolvedPairs += unresolved
	})
	return nil
}

// buildGroups 依連通元件把食材行分組
func (e *Engine) buildGroups(g *matchGraph, lines []common.IngredientLine, decisions map[string]common.Decision, res *Result) {
	var roots []int
	members := make(map[int][]int)
	for i, l := range lines {
		root := g.uf.find(g.index[comparison.Normalize(l.Name)])
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}

	for _, root := range roots {
		idxs := members[root]
		if len(idxs) < 2 {
			res.NoMerge = append(res.NoMerge, lines[idxs[0]].Clone())
			continue
		}

		group := make([]common.IngredientLine, len(idxs))
		for k, i := range idxs {
			group[k] = lines[i].Clone()
		}
		names := g.namesOf(group)
		name := suggestName(group)
		unit, ratios := g.conversionFor(name, group, names)

		if g.groupStatus(names) == common.StatusSame {
			merged, warnings := consolidate.Combine(name, group, unit, ratios)
			for _, w := range warnings {
				common.LogWarn("單位換算缺口，直接相加", zap.String("ingredient", name), zap.String("detail", w))
			}
			res.AutoMerged = append(res.AutoMerged, merged)
			res.Warnings = append(res.Warnings, warnings...)
			res.Stats.AutoGroups++
			metrics.MergeGroups.WithLabelValues("auto").Inc()
			continue
		}

		total, _ := consolidate.Combine(name, group, unit, ratios)
		ids := make([]string, len(group))
		for k, l := range group {
			ids[k] = l.IngredientID
		}
		opt := common.MergeOption{
			MergeID:          e.newID(),
			IngredientIDs:    common.NewIngredientSet(ids...),
			SuggestedName:    name,
			CanonicalUnit:    unit,
			ConversionRatios: ratios,
			TotalAmount:      total.Amount,
			Members:          group,
			Status:           common.StatusSimilar,
		}
		if d, ok := decisions[opt.IngredientIDs.Key()]; ok && d.Valid() {
			opt.UserDecision = &d
		}
		res.SuggestedMerges = append(res.SuggestedMerges, opt)
		res.Stats.SuggestedGroups++
		metrics.MergeGroups.WithLabelValues("suggested").Inc()
	}
}

// suggestName 出現最多次的正規化名稱，同票時取原始字串最長者
func suggestName(group []common.IngredientLine) string {
	type tally struct {
		count   int
		longest int
		order   int
	}
	tallies := make(map[string]*tally)
	for i, l := range group {
		n := comparison.Normalize(l.Name)
		t, ok := tallies[n]
		if !ok {
			t = &tally{order: i}
			tallies[n] = t
		}
		t.count++
		if len(l.Name) > t.longest {
			t.longest = len(l.Name)
		}
	}

	best := ""
	var bt *tally
	for n, t := range tallies {
		if bt == nil ||
			t.count > bt.count ||
			(t.count == bt.count && t.longest > bt.longest) ||
			(t.count == bt.count && t.longest == bt.longest && t.order < bt.order) {
			best, bt = n, t
		}
	}
	return best
}

// matchGraph 單次偵測的比對圖
type matchGraph struct {
	mu       sync.Mutex
	names    []string
	index    map[string]int
	unitOf   map[string]string
	uf       *unionFind
	verdicts map[comparison.Pair]common.Status
	entries  map[comparison.Pair]comparison.Entry
}

func newMatchGraph(lines []common.IngredientLine) *matchGraph {
	g := &matchGraph{
		index:    make(map[string]int),
		unitOf:   make(map[string]string),
		verdicts: make(map[comparison.Pair]common.Status),
		entries:  make(map[comparison.Pair]comparison.Entry),
	}
	firstByID := make(map[string]int)
	var idLinks [][2]int

	for _, l := range lines {
		n := comparison.Normalize(l.Name)
		idx, ok := g.index[n]
		if !ok {
			idx = len(g.names)
			g.index[n] = idx
			g.names = append(g.names, n)
			g.unitOf[n] = units.NormalizeUnit(l.Unit)
		}
		if l.IngredientID == "" {
			continue
		}
		if first, ok := firstByID[l.IngredientID]; ok {
			if first != idx {
				idLinks = append(idLinks, [2]int{first, idx})
			}
			continue
		}
		firstByID[l.IngredientID] = idx
	}

	g.uf = newUnionFind(len(g.names))
	// 同一個食材 ID 視為相同
	for _, link := range idLinks {
		g.uf.union(link[0], link[1])
		p := comparison.NewPair(g.names[link[0]], g.names[link[1]])
		g.verdicts[p] = common.StatusSame
	}
	return g
}

// resolveCached 套用快取結論，回傳仍需分類的名稱對
func (g *matchGraph) resolveCached(neighbors map[string]map[string]comparison.Entry, stats *Stats) []comparison.Pair {
	var uncached []comparison.Pair
	for i := 0; i < len(g.names); i++ {
		for j := i + 1; j < len(g.names); j++ {
			a, b := g.names[i], g.names[j]
			if entry, ok := neighbors[a][b]; ok {
				g.record(entry)
				stats.CachedPairs++
				continue
			}
			uncached = append(uncached, comparison.NewPair(a, b))
		}
	}

	// 已經相連的名稱對不需要再問
	pending := uncached[:0]
	for _, p := range uncached {
		if g.uf.connected(g.index[p.A], g.index[p.B]) {
			stats.SkippedPairs++
			continue
		}
		pending = append(pending, p)
	}
	return pending
}

// record 寫入一筆結論，same/similar 時合併集合
func (g *matchGraph) record(e comparison.Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.verdicts[e.Pair] = e.Status
	g.entries[e.Pair] = e
	if !e.Status.Connects() {
		return
	}
	a, okA := g.index[e.Pair.A]
	b, okB := g.index[e.Pair.B]
	if okA && okB {
		g.uf.union(a, b)
	}
}

func (g *matchGraph) updateStats(stats *Stats, fn func(*Stats)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(stats)
}

// namesOf 群組內不重複的正規化名稱，依出現順序
func (g *matchGraph) namesOf(group []common.IngredientLine) []string {
	seen := make(map[string]bool, len(group))
	var out []string
	for _, l := range group {
		n := comparison.Normalize(l.Name)
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// groupStatus 群組內所有已知結論皆為 same 才自動合併
func (g *matchGraph) groupStatus(names []string) common.Status {
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			s, ok := g.verdicts[comparison.NewPair(names[i], names[j])]
			if ok && s != common.StatusSame {
				return common.StatusSimilar
			}
		}
	}
	return common.StatusSame
}

// conversionFor 決定群組的共同單位與各成員的換算比例
//
// 優先使用快取中帶有換算資訊的結論；否則以單位表挑選共同單位；
// 都沒有時沿用第一筆的單位。
func (g *matchGraph) conversionFor(name string, group []common.IngredientLine, names []string) (string, []float64) {
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			e, ok := g.entries[comparison.NewPair(names[i], names[j])]
			if !ok || !e.HasConversion() {
				continue
			}
			unit := units.NormalizeUnit(e.CanonicalUnit)
			ratios := make([]float64, len(group))
			for k, l := range group {
				switch {
				case units.SameUnit(l.Unit, unit):
					ratios[k] = 1
				default:
					if r, ok := units.RatioTo(l.Name, l.Unit, unit); ok {
						ratios[k] = common.RoundTo(r, 6)
					} else if r, ok := g.cachedRatio(l.Name, unit); ok {
						ratios[k] = r
					}
				}
			}
			return unit, ratios
		}
	}

	unit := consolidate.PickUnit(name, group)
	return unit, consolidate.Ratios(name, group, unit)
}

// cachedRatio 從快取結論中找出某個名稱換成 unit 的比例
func (g *matchGraph) cachedRatio(name, unit string) (float64, bool) {
	n := comparison.Normalize(name)
	for p, e := range g.entries {
		if !p.Has(n) || units.NormalizeUnit(e.CanonicalUnit) != unit {
			continue
		}
		if r, ok := e.RatioFor(n); ok {
			return r, true
		}
	}
	return 0, false
}
