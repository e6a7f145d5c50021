// Package metrics 定義服務的 Prometheus 指標
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meal_planner"

var (
	// ComparisonLookups 比對快取查詢次數，依層級與結果分類
	ComparisonLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comparison_cache",
			Name:      "lookups_total",
			Help:      "Comparison cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	// ComparisonWrites 比對快取寫入次數
	ComparisonWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comparison_cache",
			Name:      "writes_total",
			Help:      "Comparison cache upserts by result",
		},
		[]string{"result"},
	)

	// ClassifierBatches AI 比對批次次數
	ClassifierBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "batches_total",
			Help:      "Classifier batch calls by outcome",
		},
		[]string{"outcome"},
	)

	// ClassifierPairs AI 比對結果數量
	ClassifierPairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "pairs_total",
			Help:      "Classified pairs by result",
		},
		[]string{"result"},
	)

	// ClassifierDuration AI 批次耗時
	ClassifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "batch_duration_seconds",
			Help:      "Duration of classifier batch calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
	)

	// AggregationDuration 購物清單彙整耗時
	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "duration_seconds",
			Help:      "Duration of shopping list aggregation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	// MergeGroups 合併群組數量
	MergeGroups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "similarity",
			Name:      "groups_total",
			Help:      "Match groups produced by kind",
		},
		[]string{"kind"},
	)

	// WarmerQueueLength 預熱隊列長度
	WarmerQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "warmer",
			Name:      "queue_length",
			Help:      "Pending cache warming jobs",
		},
	)

	// WarmerJobs 預熱任務數量
	WarmerJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warmer",
			Name:      "jobs_total",
			Help:      "Cache warming jobs by outcome",
		},
		[]string{"outcome"},
	)

	// HTTPRequests HTTP 請求數量
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration HTTP 請求耗時
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
