package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestRecordLoginAttempt_IncrementsCounter はログイン試行カウンタが増加することを検証する。
func TestRecordLoginAttempt_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLoginAttempt()
	c.RecordLoginAttempt()

	if got := counterValue(t, reg, "kaiwa_login_attempts_total"); got != 2 {
		t.Errorf("login_attempts_total = %v, want 2", got)
	}
}

// TestRecordLoginFailure_LabelsByReason は失敗理由がラベルとして記録されることを検証する。
func TestRecordLoginFailure_LabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLoginFailure("credentials")
	c.RecordLoginFailure("credentials")
	c.RecordLoginFailure("network")

	if got := counterValue(t, reg, "kaiwa_login_fail_total"); got != 3 {
		t.Errorf("login_fail_total = %v, want 3", got)
	}
}

// TestRecordVerify_RecordsResultAndLatency は検証結果とレイテンシが記録されることを検証する。
func TestRecordVerify_RecordsResultAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVerify(true, 100*time.Millisecond)
	c.RecordVerify(false, 200*time.Millisecond)

	if got := counterValue(t, reg, "kaiwa_verify_total"); got != 2 {
		t.Errorf("verify_total = %v, want 2", got)
	}

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range metrics {
		if mf.GetName() == "kaiwa_verify_latency_seconds" {
			found = true
			if count := mf.GetMetric()[0].GetHistogram().GetSampleCount(); count != 2 {
				t.Errorf("latency sample count = %d, want 2", count)
			}
		}
	}
	if !found {
		t.Error("kaiwa_verify_latency_seconds metric not found")
	}
}

// TestHandler_ServesMetrics はハンドラー経由でメトリクスが公開されることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSyncRestart()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "kaiwa_sync_restarts_total") {
		t.Error("response should contain kaiwa_sync_restarts_total metric")
	}
}
