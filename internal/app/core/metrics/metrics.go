package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Settlement 結果標籤
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// Registry 帳本服務專用的 collector registry
	Registry = prometheus.NewRegistry()

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yield_ledger",
			Subsystem: "engine",
			Name:      "settlements_total",
			Help:      "Total number of balance mutations by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	accruedRewards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "yield_ledger",
			Subsystem: "engine",
			Name:      "accrued_rewards_total",
			Help:      "Sum of rewards credited by yield accrual, in ledger units.",
		},
	)

	clamps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yield_ledger",
			Subsystem: "engine",
			Name:      "clamps_total",
			Help:      "Number of mutations whose result was floored at zero.",
		},
		[]string{"kind"},
	)

	conflictRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "yield_ledger",
			Subsystem: "engine",
			Name:      "conflict_retries_total",
			Help:      "Units of work retried after an optimistic version conflict.",
		},
	)

	publishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "yield_ledger",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Balance events that could not be published.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "yield_ledger",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of accrual sweeps over all accounts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms ~ 40s
		},
	)

	sweepFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "yield_ledger",
			Subsystem: "sweep",
			Name:      "account_failures_total",
			Help:      "Accounts whose accrual failed during a sweep.",
		},
	)
)

func init() {
	Registry.MustRegister(
		settlements,
		accruedRewards,
		clamps,
		conflictRetries,
		publishFailures,
		sweepDuration,
		sweepFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler 回傳 /metrics 使用的 HTTP handler
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordSettlement 記錄一次帳本異動的結果
func RecordSettlement(kind, outcome string) {
	settlements.WithLabelValues(kind, outcome).Inc()
}

// RecordAccrual 記錄收益入帳金額
func RecordAccrual(reward float64) {
	if reward > 0 {
		accruedRewards.Add(reward)
	}
}

// RecordClamp 記錄一次歸零截斷
func RecordClamp(kind string) {
	clamps.WithLabelValues(kind).Inc()
}

// RecordConflictRetry 記錄一次樂觀鎖重試
func RecordConflictRetry() {
	conflictRetries.Inc()
}

// RecordPublishFailure 記錄一次事件發送失敗
func RecordPublishFailure() {
	publishFailures.Inc()
}

// ObserveSweep 記錄收益批次耗時與失敗帳戶數
func ObserveSweep(elapsed time.Duration, failed int) {
	sweepDuration.Observe(elapsed.Seconds())
	if failed > 0 {
		sweepFailures.Add(float64(failed))
	}
}

// SettlementCount 測試用: 讀取目前計數
func SettlementCount(kind, outcome string) prometheus.Counter {
	return settlements.WithLabelValues(kind, outcome)
}

// ClampCount 測試用: 讀取目前計數
func ClampCount(kind string) prometheus.Counter {
	return clamps.WithLabelValues(kind)
}
