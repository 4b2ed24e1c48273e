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

// findMetric は指定名・指定ラベルのメトリクスを返す。labelsがnilの場合は最初の系列を返す。
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
			if matchLabels(m, labels) {
				return m
			}
		}
	}
	return nil
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordHTTPRequest_IncrementsCounterWithLabels はメソッド・ステータス別に集計されることを検証する。
func TestRecordHTTPRequest_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, 200)
	c.RecordHTTPRequest(http.MethodGet, 200)
	c.RecordHTTPRequest(http.MethodPost, 401)

	m := findMetric(t, reg, "docman_http_requests_total", map[string]string{"method": "GET", "status": "200"})
	if m == nil {
		t.Fatal("GET 200 series not found")
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("GET 200 = %v, want 2", got)
	}

	m = findMetric(t, reg, "docman_http_requests_total", map[string]string{"method": "POST", "status": "401"})
	if m == nil {
		t.Fatal("POST 401 series not found")
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("POST 401 = %v, want 1", got)
	}
}

// TestRecordAuthRejection_CountsByReason は拒否理由ごとに独立して集計されることを検証する。
func TestRecordAuthRejection_CountsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthRejection("missing_header")
	c.RecordAuthRejection("invalid_token")
	c.RecordAuthRejection("invalid_token")

	tests := []struct {
		reason string
		want   float64
	}{
		{"missing_header", 1},
		{"invalid_token", 2},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, "docman_auth_rejections_total", map[string]string{"reason": tt.reason})
		if m == nil {
			t.Fatalf("reason %q not found", tt.reason)
		}
		if got := m.GetCounter().GetValue(); got != tt.want {
			t.Errorf("reason %q = %v, want %v", tt.reason, got, tt.want)
		}
	}
}

// TestRecordGeneration_ObservesOutcomeAndLatency は結果カウンタとヒストグラムが更新されることを検証する。
func TestRecordGeneration_ObservesOutcomeAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGeneration(OutcomeSuccess, 2*time.Second)
	c.RecordGeneration(OutcomeTimeout, 90*time.Second)

	m := findMetric(t, reg, "docman_generation_requests_total", map[string]string{"outcome": OutcomeTimeout})
	if m == nil {
		t.Fatal("timeout series not found")
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("timeout = %v, want 1", got)
	}

	h := findMetric(t, reg, "docman_generation_latency_seconds", nil)
	if h == nil {
		t.Fatal("latency histogram not found")
	}
	if got := h.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
	if got := h.GetHistogram().GetSampleSum(); got != 92 {
		t.Errorf("sample sum = %v, want 92", got)
	}
}

// TestRecordUpload_CountsDocumentsAndBytes はアップロード件数とバイト数が加算されることを検証する。
func TestRecordUpload_CountsDocumentsAndBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpload(1024)
	c.RecordUpload(0)

	if m := findMetric(t, reg, "docman_documents_uploaded_total", nil); m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("documents_uploaded_total = %v, want 2", m.GetCounter().GetValue())
	}
	if m := findMetric(t, reg, "docman_upload_bytes_total", nil); m == nil || m.GetCounter().GetValue() != 1024 {
		t.Errorf("upload_bytes_total = %v, want 1024", m.GetCounter().GetValue())
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, 200)
	c.RecordAuthRejection("missing_header")
	c.RecordGeneration(OutcomeError, 500*time.Millisecond)
	c.RecordUpload(10)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"docman_http_requests_total",
		"docman_auth_rejections_total",
		"docman_generation_requests_total",
		"docman_generation_latency_seconds",
		"docman_documents_uploaded_total",
		"docman_upload_bytes_total",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordAuthRejection("missing_header")
	c2.RecordAuthRejection("missing_header")
	c2.RecordAuthRejection("missing_header")

	labels := map[string]string{"reason": "missing_header"}
	val1 := findMetric(t, reg1, "docman_auth_rejections_total", labels).GetCounter().GetValue()
	val2 := findMetric(t, reg2, "docman_auth_rejections_total", labels).GetCounter().GetValue()

	if val1 != 1 {
		t.Errorf("reg1 = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 = %v, want 2", val2)
	}
}
