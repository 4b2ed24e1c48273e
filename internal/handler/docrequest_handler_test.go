package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/docman/internal/docrequest"
	"github.com/hitoshi/docman/internal/model"
)

// --- モック定義 ---

// mockDocumentRequestService はDocumentRequestServiceInterfaceのモック実装。
type mockDocumentRequestService struct {
	createFn     func(ctx context.Context, userID string, in docrequest.CreateInput) (*model.DocumentRequest, error)
	listFn       func(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error)
	getFn        func(ctx context.Context, requesterID, id string) (*model.DocumentRequest, error)
	updateFn     func(ctx context.Context, requesterID, id string, patch model.DocumentRequestPatch) (*model.DocumentRequest, error)
	deleteFn     func(ctx context.Context, requesterID, id string) error
	statsFn      func(ctx context.Context, userID string) (*model.DocumentRequestStats, error)
	generateFn   func(ctx context.Context, documentType string, input map[string]any) (*docrequest.GenerateResult, error)
	generateCVFn func(ctx context.Context, input map[string]any) string
}

func (m *mockDocumentRequestService) Create(ctx context.Context, userID string, in docrequest.CreateInput) (*model.DocumentRequest, error) {
	return m.createFn(ctx, userID, in)
}
func (m *mockDocumentRequestService) List(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error) {
	return m.listFn(ctx, userID, documentType, page)
}
func (m *mockDocumentRequestService) Get(ctx context.Context, requesterID, id string) (*model.DocumentRequest, error) {
	return m.getFn(ctx, requesterID, id)
}
func (m *mockDocumentRequestService) Update(ctx context.Context, requesterID, id string, patch model.DocumentRequestPatch) (*model.DocumentRequest, error) {
	return m.updateFn(ctx, requesterID, id, patch)
}
func (m *mockDocumentRequestService) Delete(ctx context.Context, requesterID, id string) error {
	return m.deleteFn(ctx, requesterID, id)
}
func (m *mockDocumentRequestService) Stats(ctx context.Context, userID string) (*model.DocumentRequestStats, error) {
	return m.statsFn(ctx, userID)
}
func (m *mockDocumentRequestService) Generate(ctx context.Context, documentType string, input map[string]any) (*docrequest.GenerateResult, error) {
	return m.generateFn(ctx, documentType, input)
}
func (m *mockDocumentRequestService) GenerateCV(ctx context.Context, input map[string]any) string {
	return m.generateCVFn(ctx, input)
}

// --- POST /api/v1/document-requests テスト ---

func TestDocumentRequestHandler_Create(t *testing.T) {
	var gotUser string
	var got docrequest.CreateInput
	svc := &mockDocumentRequestService{
		createFn: func(ctx context.Context, userID string, in docrequest.CreateInput) (*model.DocumentRequest, error) {
			gotUser, got = userID, in
			return &model.DocumentRequest{ID: "req-1", UserID: userID, DocumentType: in.DocumentType, InputData: in.InputData}, nil
		},
	}
	h := NewDocumentRequestHandler(svc, resolverFor("user-1"))

	body := `{"document_type":"cv","input_data":{"name":"Ann"}}`
	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/document-requests", strings.NewReader(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotUser != "user-1" || got.DocumentType != "cv" || got.InputData["name"] != "Ann" {
		t.Errorf("user=%q input=%+v", gotUser, got)
	}
}

func TestDocumentRequestHandler_List_FiltersByType(t *testing.T) {
	var gotType string
	svc := &mockDocumentRequestService{
		listFn: func(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error) {
			gotType = documentType
			return []*model.DocumentRequest{{ID: "req-1", DocumentType: "cv"}}, nil
		},
	}
	h := NewDocumentRequestHandler(svc, resolverFor("user-1"))

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/document-requests?document_type=cv", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotType != "cv" {
		t.Errorf("document_type = %q", gotType)
	}
	var resp []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	// input_dataは空でもオブジェクトとして返す
	if _, ok := resp[0]["input_data"].(map[string]any); !ok {
		t.Errorf("input_data = %#v, want object", resp[0]["input_data"])
	}
}

func TestDocumentRequestHandler_Get_OtherUser_Returns403(t *testing.T) {
	svc := &mockDocumentRequestService{
		getFn: func(ctx context.Context, requesterID, id string) (*model.DocumentRequest, error) {
			return nil, model.NewForbiddenError()
		},
	}
	h := NewDocumentRequestHandler(svc, resolverFor("user-2"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/document-requests/req-1", nil)
	w := serveWithRouter(t, http.MethodGet, "/api/v1/document-requests/{id}", h.Get, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestDocumentRequestHandler_Update_And_Delete(t *testing.T) {
	svc := &mockDocumentRequestService{
		updateFn: func(ctx context.Context, requesterID, id string, patch model.DocumentRequestPatch) (*model.DocumentRequest, error) {
			if patch.GeneratedContent == nil || *patch.GeneratedContent != "done" || patch.DocumentType != nil {
				t.Errorf("patch = %+v", patch)
			}
			return &model.DocumentRequest{ID: id, GeneratedContent: "done"}, nil
		},
		deleteFn: func(ctx context.Context, requesterID, id string) error {
			return nil
		},
	}
	h := NewDocumentRequestHandler(svc, resolverFor("user-1"))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/document-requests/req-1", strings.NewReader(`{"generated_content":"done"}`))
	w := serveWithRouter(t, http.MethodPut, "/api/v1/document-requests/{id}", h.Update, req)
	if w.Code != http.StatusOK {
		t.Errorf("update status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/document-requests/req-1", nil)
	w = serveWithRouter(t, http.MethodDelete, "/api/v1/document-requests/{id}", h.Delete, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
}

// --- GET /api/v1/document-requests/stats/summary テスト ---

func TestDocumentRequestHandler_Stats_EmptyMapIsObject(t *testing.T) {
	svc := &mockDocumentRequestService{
		statsFn: func(ctx context.Context, userID string) (*model.DocumentRequestStats, error) {
			return &model.DocumentRequestStats{}, nil
		},
	}
	h := NewDocumentRequestHandler(svc, resolverFor("user-1"))

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/document-requests/stats/summary", nil))

	if got := strings.TrimSpace(w.Body.String()); got != `{"total_requests":0,"requests_by_type":{}}` {
		t.Errorf("body = %s", got)
	}
}

// --- POST /api/v1/document-requests/generate テスト ---

func TestDocumentRequestHandler_Generate_NoAuthRequired(t *testing.T) {
	svc := &mockDocumentRequestService{
		generateFn: func(ctx context.Context, documentType string, input map[string]any) (*docrequest.GenerateResult, error) {
			return &docrequest.GenerateResult{DocumentType: documentType, InputData: input, GeneratedContent: "text"}, nil
		},
	}
	// 未認証のリゾルバーでも生成できる
	h := NewDocumentRequestHandler(svc, &mockResolver{})

	body := `{"document_type":"cover_letter","input_data":{"company":"Acme"}}`
	w := httptest.NewRecorder()
	h.Generate(w, httptest.NewRequest(http.MethodPost, "/api/v1/document-requests/generate", strings.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp docrequest.GenerateResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.DocumentType != "cover_letter" || resp.GeneratedContent != "text" || resp.InputData["company"] != "Acme" {
		t.Errorf("unexpected result: %+v", resp)
	}
}

func TestDocumentRequestHandler_Generate_EmptyType_Returns400(t *testing.T) {
	svc := &mockDocumentRequestService{
		generateFn: func(ctx context.Context, documentType string, input map[string]any) (*docrequest.GenerateResult, error) {
			return nil, model.NewInvalidRequestError("document_type is required")
		},
	}
	h := NewDocumentRequestHandler(svc, &mockResolver{})

	w := httptest.NewRecorder()
	h.Generate(w, httptest.NewRequest(http.MethodPost, "/api/v1/document-requests/generate", strings.NewReader(`{}`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- POST /api/v1/cv/generate テスト ---

func TestDocumentRequestHandler_GenerateCV(t *testing.T) {
	svc := &mockDocumentRequestService{
		generateCVFn: func(ctx context.Context, input map[string]any) string {
			return "CV for " + input["name"].(string)
		},
	}

	t.Run("認証済み", func(t *testing.T) {
		h := NewDocumentRequestHandler(svc, resolverFor("user-1"))
		w := httptest.NewRecorder()
		h.GenerateCV(w, httptest.NewRequest(http.MethodPost, "/api/v1/cv/generate", strings.NewReader(`{"name":"Ann"}`)))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp cvResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Text != "CV for Ann" {
			t.Errorf("text = %q", resp.Text)
		}
	})

	t.Run("未認証", func(t *testing.T) {
		h := NewDocumentRequestHandler(svc, &mockResolver{})
		w := httptest.NewRecorder()
		h.GenerateCV(w, httptest.NewRequest(http.MethodPost, "/api/v1/cv/generate", strings.NewReader(`{"name":"Ann"}`)))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
