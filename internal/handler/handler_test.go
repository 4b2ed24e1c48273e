package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docman/internal/model"
)

// --- 共通モック ---

// mockResolver はCurrentUserResolverのモック実装。userがnilなら未認証エラーを返す。
type mockResolver struct {
	user *model.User
	err  error
}

func (m *mockResolver) CurrentUser(ctx context.Context) (*model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.user == nil {
		return nil, model.NewUnauthorizedError()
	}
	return m.user, nil
}

func resolverFor(id string) *mockResolver {
	return &mockResolver{user: &model.User{ID: id, Email: id + "@example.com"}}
}

// serveWithRouter はpatternを登録したchiルーター経由でリクエストを処理する。
// chi.URLParamを使うハンドラーのテストに使う。
func serveWithRouter(t *testing.T, method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeErrorCode はエラーレスポンスのcodeを取り出す。
func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Code
}
