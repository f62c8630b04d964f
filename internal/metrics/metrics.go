// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ストア・プランナー・認証・ミドルウェアから利用する。
type MetricsCollector interface {
	RecordMutation(kind, op string)
	RecordPersistFailure(kind, op string)
	RecordPersistLatency(duration time.Duration)
	RecordPlannerCall(outcome string)
	RecordPlannerLatency(duration time.Duration)
	RecordAuthEvent(name string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	mutations      *prometheus.CounterVec
	persistFail    *prometheus.CounterVec
	persistLatency prometheus.Histogram
	plannerCalls   *prometheus.CounterVec
	plannerLatency prometheus.Histogram
	authEvents     *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_store_mutations_total",
			Help: "ローカルストアへの変更の合計数",
		}, []string{"kind", "op"}),
		persistFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_persist_fail_total",
			Help: "リモートへの永続化失敗の合計数",
		}, []string{"kind", "op"}),
		persistLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planify_persist_latency_seconds",
			Help:    "リモートへの永続化のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		plannerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_planner_calls_total",
			Help: "AIプランナー呼び出しの結果別の合計数",
		}, []string{"outcome"}),
		plannerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planify_planner_latency_seconds",
			Help:    "AIプランナー呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_auth_events_total",
			Help: "認証イベントの種類別の合計数",
		}, []string{"event"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.mutations,
		c.persistFail,
		c.persistLatency,
		c.plannerCalls,
		c.plannerLatency,
		c.authEvents,
		c.httpStatus,
	)

	return c
}

// RecordMutation はストアの変更を記録する。
func (c *Collector) RecordMutation(kind, op string) {
	c.mutations.WithLabelValues(kind, op).Inc()
}

// RecordPersistFailure は永続化失敗を記録する。
func (c *Collector) RecordPersistFailure(kind, op string) {
	c.persistFail.WithLabelValues(kind, op).Inc()
}

// RecordPersistLatency は永続化のレイテンシを記録する。
func (c *Collector) RecordPersistLatency(duration time.Duration) {
	c.persistLatency.Observe(duration.Seconds())
}

// RecordPlannerCall はプランナー呼び出しの結果（ok, empty, error）を記録する。
func (c *Collector) RecordPlannerCall(outcome string) {
	c.plannerCalls.WithLabelValues(outcome).Inc()
}

// RecordPlannerLatency はプランナー呼び出しのレイテンシを記録する。
func (c *Collector) RecordPlannerLatency(duration time.Duration) {
	c.plannerLatency.Observe(duration.Seconds())
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(name string) {
	c.authEvents.WithLabelValues(name).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordMutation(string, string)       {}
func (Nop) RecordPersistFailure(string, string) {}
func (Nop) RecordPersistLatency(time.Duration)  {}
func (Nop) RecordPlannerCall(string)            {}
func (Nop) RecordPlannerLatency(time.Duration)  {}
func (Nop) RecordAuthEvent(string)              {}
func (Nop) RecordHTTPStatus(int)                {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
