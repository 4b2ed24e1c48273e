// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 生成処理の結果ラベル。
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeEmpty   = "empty"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int)
	RecordAuthRejection(reason string)
	RecordGeneration(outcome string, duration time.Duration)
	RecordUpload(sizeBytes int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests      *prometheus.CounterVec
	authRejections    *prometheus.CounterVec
	generations       *prometheus.CounterVec
	generationLatency prometheus.Histogram
	documentsUploaded prometheus.Counter
	uploadBytes       prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docman_http_requests_total",
			Help: "メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "status"}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docman_auth_rejections_total",
			Help: "認証ゲートで拒否されたリクエスト数（理由別）",
		}, []string{"reason"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docman_generation_requests_total",
			Help: "外部テキスト生成サービスへのリクエスト数（結果別）",
		}, []string{"outcome"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docman_generation_latency_seconds",
			Help:    "外部テキスト生成のレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
		}),
		documentsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docman_documents_uploaded_total",
			Help: "アップロードされたドキュメントの合計数",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docman_upload_bytes_total",
			Help: "アップロードされたファイルの合計バイト数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.authRejections,
		c.generations,
		c.generationLatency,
		c.documentsUploaded,
		c.uploadBytes,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストを記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// RecordAuthRejection は認証拒否を理由付きで記録する。
func (c *Collector) RecordAuthRejection(reason string) {
	c.authRejections.WithLabelValues(reason).Inc()
}

// RecordGeneration は生成リクエストの結果とレイテンシを記録する。
func (c *Collector) RecordGeneration(outcome string, duration time.Duration) {
	c.generations.WithLabelValues(outcome).Inc()
	c.generationLatency.Observe(duration.Seconds())
}

// RecordUpload はアップロード件数とバイト数を記録する。
func (c *Collector) RecordUpload(sizeBytes int64) {
	c.documentsUploaded.Inc()
	if sizeBytes > 0 {
		c.uploadBytes.Add(float64(sizeBytes))
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
