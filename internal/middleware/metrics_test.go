package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockRequestRecorder struct {
	methods  []string
	statuses []int
}

func (m *mockRequestRecorder) RecordHTTPRequest(method string, statusCode int) {
	m.methods = append(m.methods, method)
	m.statuses = append(m.statuses, statusCode)
}

func TestMetricsMiddleware_RecordsMethodAndStatus(t *testing.T) {
	recorder := &mockRequestRecorder{}

	handler := NewMetricsMiddleware(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/documents/1", nil))

	if len(recorder.statuses) != 2 {
		t.Fatalf("recorded = %d, want 2", len(recorder.statuses))
	}
	if recorder.methods[0] != http.MethodGet || recorder.statuses[0] != http.StatusOK {
		t.Errorf("first = (%s, %d), want (GET, 200)", recorder.methods[0], recorder.statuses[0])
	}
	if recorder.methods[1] != http.MethodDelete || recorder.statuses[1] != http.StatusNoContent {
		t.Errorf("second = (%s, %d), want (DELETE, 204)", recorder.methods[1], recorder.statuses[1])
	}
}
