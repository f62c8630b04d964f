package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordMutation_IncrementsCounterWithLabels は種類・操作別にカウントされることを検証する。
func TestRecordMutation_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMutation("task", "add")
	c.RecordMutation("task", "add")
	c.RecordMutation("habit", "toggle")

	m := findMetric(t, reg, "planify_store_mutations_total", map[string]string{"kind": "task", "op": "add"})
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("task/add = %v, want 2", got)
	}
	m = findMetric(t, reg, "planify_store_mutations_total", map[string]string{"kind": "habit", "op": "toggle"})
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("habit/toggle = %v, want 1", got)
	}
}

// TestRecordPersistFailure_IncrementsCounter は永続化失敗カウンタが増加することを検証する。
func TestRecordPersistFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPersistFailure("debt", "update")

	m := findMetric(t, reg, "planify_persist_fail_total", map[string]string{"kind": "debt", "op": "update"})
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("persist_fail_total = %v, want 1", got)
	}
}

// TestRecordPlannerCall_ByOutcome はプランナー結果別にカウントされることを検証する。
func TestRecordPlannerCall_ByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPlannerCall("ok")
	c.RecordPlannerCall("empty")
	c.RecordPlannerCall("empty")

	m := findMetric(t, reg, "planify_planner_calls_total", map[string]string{"outcome": "empty"})
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("empty = %v, want 2", got)
	}
}

// TestRecordLatency_ObservesHistogram はレイテンシのヒストグラムを検証する。
func TestRecordLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPersistLatency(150 * time.Millisecond)
	c.RecordPlannerLatency(2 * time.Second)

	m := findMetric(t, reg, "planify_persist_latency_seconds", nil)
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("persist sample count = %d, want 1", got)
	}
	m = findMetric(t, reg, "planify_planner_latency_seconds", nil)
	if got := m.GetHistogram().GetSampleSum(); got != 2 {
		t.Errorf("planner sample sum = %v, want 2", got)
	}
}

// TestRecordAuthEventAndHTTPStatus はラベル付きカウンタを検証する。
func TestRecordAuthEventAndHTTPStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthEvent("password_recovery")
	c.RecordHTTPStatus(428)

	if got := findMetric(t, reg, "planify_auth_events_total", map[string]string{"event": "password_recovery"}).GetCounter().GetValue(); got != 1 {
		t.Errorf("auth event = %v, want 1", got)
	}
	if got := findMetric(t, reg, "planify_http_status_total", map[string]string{"status_code": "428"}).GetCounter().GetValue(); got != 1 {
		t.Errorf("http status = %v, want 1", got)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsがテキスト形式を返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordMutation("task", "add")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "planify_store_mutations_total") {
		t.Error("response should contain planify_store_mutations_total metric")
	}
}

// TestMultipleCollectors_IndependentRegistries はレジストリごとに独立して登録できることを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	NewCollector(reg1).RecordAuthEvent("signed_in")
	NewCollector(reg2)

	families, _ := reg2.Gather()
	for _, mf := range families {
		if mf.GetName() == "planify_auth_events_total" && len(mf.GetMetric()) > 0 {
			t.Error("reg2 should not contain events recorded on reg1")
		}
	}
}

func TestNop_ImplementsInterface(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordMutation("task", "add")
	c.RecordHTTPStatus(200)
}
