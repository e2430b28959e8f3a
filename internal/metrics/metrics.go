// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証・検証・同期の各層から利用する。
type MetricsCollector interface {
	RecordLoginAttempt()
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordVerify(success bool, duration time.Duration)
	RecordStoreWriteFailure(fileName string)
	RecordSyncRestart()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginAttempts  prometheus.Counter
	loginSuccess   prometheus.Counter
	loginFail      *prometheus.CounterVec
	verifyTotal    *prometheus.CounterVec
	verifyLatency  prometheus.Histogram
	storeWriteFail *prometheus.CounterVec
	syncRestarts   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kaiwa_login_attempts_total",
			Help: "ログイン試行の合計数",
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kaiwa_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kaiwa_login_fail_total",
			Help: "理由別のログイン失敗数",
		}, []string{"reason"}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kaiwa_verify_total",
			Help: "結果別のホームサーバー検証数",
		}, []string{"result"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kaiwa_verify_latency_seconds",
			Help:    "ホームサーバー検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		storeWriteFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kaiwa_store_write_fail_total",
			Help: "ファイル別のストア書き込み失敗数",
		}, []string{"file"}),
		syncRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kaiwa_sync_restarts_total",
			Help: "同期ループの再試行回数",
		}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.loginSuccess,
		c.loginFail,
		c.verifyTotal,
		c.verifyLatency,
		c.storeWriteFail,
		c.syncRestarts,
	)

	return c
}

// RecordLoginAttempt はログイン試行を記録する。
func (c *Collector) RecordLoginAttempt() {
	c.loginAttempts.Inc()
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を理由付きで記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFail.WithLabelValues(reason).Inc()
}

// RecordVerify はホームサーバー検証の結果とレイテンシを記録する。
func (c *Collector) RecordVerify(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.verifyTotal.WithLabelValues(result).Inc()
	c.verifyLatency.Observe(duration.Seconds())
}

// RecordStoreWriteFailure はストア書き込み失敗をファイル名付きで記録する。
func (c *Collector) RecordStoreWriteFailure(fileName string) {
	c.storeWriteFail.WithLabelValues(fileName).Inc()
}

// RecordSyncRestart は同期ループの再試行を記録する。
func (c *Collector) RecordSyncRestart() {
	c.syncRestarts.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
