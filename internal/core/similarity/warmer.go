package similarity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/infrastructure/metrics"
	"meal-planner/internal/pkg/common"

	"go.uber.org/zap"
)

// 單一預熱任務的時間上限
const warmJobTimeout = 2 * time.Minute

// WarmerStatus 預熱隊列狀態
type WarmerStatus struct {
	QueueLength    int   `json:"queue_length"`
	ProcessedCount int64 `json:"processed_count"`
	DroppedCount   int64 `json:"dropped_count"`
	FailedCount    int64 `json:"failed_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Warmer 在背景跑完整偵測，只為了把結論寫進快取
//
// 目前的請求不會等待預熱結果，寫入的結論只對之後的請求有效。
type Warmer struct {
	engine    *Engine
	queue     chan []common.IngredientLine
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	workers   int
	maxSize   int
	processed int64
	dropped   int64
	failed    int64
}

// NewWarmer 創建預熱隊列，需呼叫 Start 啟動 worker
func NewWarmer(engine *Engine, cfg *config.WarmerConfig) *Warmer {
	workers, maxSize := cfg.Workers, cfg.MaxSize
	if workers <= 0 {
		workers = 1
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Warmer{
		engine:  engine,
		queue:   make(chan []common.IngredientLine, maxSize),
		done:    make(chan struct{}),
		workers: workers,
		maxSize: maxSize,
	}
}

// Start 啟動 worker
func (w *Warmer) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.work(i)
	}
	common.LogInfo("快取預熱隊列已啟動",
		zap.Int("workers", w.workers),
		zap.Int("max_queue_size", w.maxSize),
	)
}

// Enqueue 加入預熱任務，隊列已滿或已關閉時直接丟棄並回傳 false
func (w *Warmer) Enqueue(lines []common.IngredientLine) bool {
	if len(lines) < 2 {
		return false
	}
	job := make([]common.IngredientLine, len(lines))
	for i, l := range lines {
		job[i] = l.Clone()
	}

	select {
	case <-w.done:
		return false
	default:
	}

	select {
	case w.queue <- job:
		metrics.WarmerQueueLength.Set(float64(len(w.queue)))
		common.LogDebug("預熱任務已加入隊列", zap.Int("queue_length", len(w.queue)), zap.Int("lines", len(job)))
		return true
	default:
		atomic.AddInt64(&w.dropped, 1)
		metrics.WarmerJobs.WithLabelValues("dropped").Inc()
		common.LogWarn("預熱隊列已滿，丟棄任務", zap.Int("max_queue_size", w.maxSize))
		return false
	}
}

// GetQueueStatus 獲取隊列狀態
func (w *Warmer) GetQueueStatus() *WarmerStatus {
	return &WarmerStatus{
		QueueLength:    len(w.queue),
		ProcessedCount: atomic.LoadInt64(&w.processed),
		DroppedCount:   atomic.LoadInt64(&w.dropped),
		FailedCount:    atomic.LoadInt64(&w.failed),
		MaxQueueSize:   w.maxSize,
		Workers:        w.workers,
	}
}

// Close 停止 worker，尚未處理的任務會被丟棄
func (w *Warmer) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

func (w *Warmer) work(id int) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case lines := <-w.queue:
			metrics.WarmerQueueLength.Set(float64(len(w.queue)))
			w.run(id, lines)
		}
	}
}

func (w *Warmer) run(id int, lines []common.IngredientLine) {
	ctx, cancel := context.WithTimeout(context.Background(), warmJobTimeout)
	defer cancel()

	// done 關閉時中止進行中的分類
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-w.done:
			cancel()
		case <-stop:
		}
	}()

	res, err := w.engine.Detect(ctx, lines, nil, DetectOptions{})
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		metrics.WarmerJobs.WithLabelValues("failed").Inc()
		common.LogWarn("快取預熱失敗", zap.Int("worker", id), zap.Error(err))
		return
	}

	atomic.AddInt64(&w.processed, 1)
	metrics.WarmerJobs.WithLabelValues("ok").Inc()
	common.LogDebug("快取預熱完成",
		zap.Int("worker", id),
		zap.Int("classified_pairs", res.Stats.ClassifiedPairs),
		zap.Int("unresolved_pairs", res.Stats.UnresolvedPairs),
	)
}
