package middleware

import "net/http"

// RequestRecorder はHTTPリクエストの記録先。metrics.Collectorが実装する。
type RequestRecorder interface {
	RecordHTTPRequest(method string, statusCode int)
}

// NewMetricsMiddleware はメソッドとステータスコード別にリクエスト数を記録するミドルウェアを返す。
func NewMetricsMiddleware(recorder RequestRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(rec, r)
			recorder.RecordHTTPRequest(r.Method, rec.statusCode)
		})
	}
}
