package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docman/internal/docrequest"
	"github.com/hitoshi/docman/internal/model"
)

// DocumentRequestServiceInterface は生成リクエストハンドラーが必要とするサービスインターフェース。
type DocumentRequestServiceInterface interface {
	Create(ctx context.Context, userID string, in docrequest.CreateInput) (*model.DocumentRequest, error)
	List(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error)
	Get(ctx context.Context, requesterID, id string) (*model.DocumentRequest, error)
	Update(ctx context.Context, requesterID, id string, patch model.DocumentRequestPatch) (*model.DocumentRequest, error)
	Delete(ctx context.Context, requesterID, id string) error
	Stats(ctx context.Context, userID string) (*model.DocumentRequestStats, error)
	Generate(ctx context.Context, documentType string, input map[string]any) (*docrequest.GenerateResult, error)
	GenerateCV(ctx context.Context, input map[string]any) string
}

// DocumentRequestHandler は生成リクエストと本文生成のHTTPハンドラー。
type DocumentRequestHandler struct {
	service  DocumentRequestServiceInterface
	resolver CurrentUserResolver
}

// NewDocumentRequestHandler はDocumentRequestHandlerを生成する。
func NewDocumentRequestHandler(service DocumentRequestServiceInterface, resolver CurrentUserResolver) *DocumentRequestHandler {
	return &DocumentRequestHandler{
		service:  service,
		resolver: resolver,
	}
}

// documentRequestBody は生成リクエスト作成と本文生成のリクエストボディ。
type documentRequestBody struct {
	DocumentType     string         `json:"document_type"`
	InputData        map[string]any `json:"input_data"`
	GeneratedContent string         `json:"generated_content"`
}

// documentRequestResponse は生成リクエストのAPIレスポンス。
type documentRequestResponse struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	DocumentType     string         `json:"document_type"`
	InputData        map[string]any `json:"input_data"`
	GeneratedContent string         `json:"generated_content"`
	CreatedAt        time.Time      `json:"created_at"`
}

// documentRequestStatsResponse は生成リクエスト統計のAPIレスポンス。
type documentRequestStatsResponse struct {
	TotalRequests  int            `json:"total_requests"`
	RequestsByType map[string]int `json:"requests_by_type"`
}

// cvResponse は履歴書生成のAPIレスポンス。
type cvResponse struct {
	Text string `json:"text"`
}

// List は自分の生成リクエスト一覧を返す。
// GET /api/v1/document-requests
func (h *DocumentRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	reqs, err := h.service.List(r.Context(), current.ID, r.URL.Query().Get("document_type"), pageFromQuery(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]documentRequestResponse, 0, len(reqs))
	for _, req := range reqs {
		resp = append(resp, toDocumentRequestResponse(req))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は生成リクエストを作成する。
// POST /api/v1/document-requests
func (h *DocumentRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var body documentRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}

	req, err := h.service.Create(r.Context(), current.ID, docrequest.CreateInput{
		DocumentType:     body.DocumentType,
		InputData:        body.InputData,
		GeneratedContent: body.GeneratedContent,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentRequestResponse(req))
}

// Get は生成リクエストを返す。
// GET /api/v1/document-requests/{id}
func (h *DocumentRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	req, err := h.service.Get(r.Context(), current.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentRequestResponse(req))
}

// Update は生成リクエストを更新する。
// PUT /api/v1/document-requests/{id}
func (h *DocumentRequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var patch model.DocumentRequestPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	req, err := h.service.Update(r.Context(), current.ID, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentRequestResponse(req))
}

// Delete は生成リクエストを削除する。
// DELETE /api/v1/document-requests/{id}
func (h *DocumentRequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), current.ID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats は自分の生成リクエスト統計を返す。
// GET /api/v1/document-requests/stats/summary
func (h *DocumentRequestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), current.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	byType := stats.RequestsByType
	if byType == nil {
		byType = map[string]int{}
	}
	writeJSON(w, http.StatusOK, documentRequestStatsResponse{
		TotalRequests:  stats.TotalRequests,
		RequestsByType: byType,
	})
}

// Generate は外部生成サービスで本文を生成する。認証不要、クライアントIP単位でレート制限する。
// POST /api/v1/document-requests/generate
func (h *DocumentRequestHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var body documentRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := h.service.Generate(r.Context(), body.DocumentType, body.InputData)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GenerateCV は任意の入力マップから履歴書本文を生成する。
// POST /api/v1/cv/generate
func (h *DocumentRequestHandler) GenerateCV(w http.ResponseWriter, r *http.Request) {
	if _, err := h.resolver.CurrentUser(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}

	var payload map[string]any
	if !decodeJSON(w, r, &payload) {
		return
	}

	writeJSON(w, http.StatusOK, cvResponse{Text: h.service.GenerateCV(r.Context(), payload)})
}

// toDocumentRequestResponse はmodel.DocumentRequestからAPIレスポンスに変換する。
func toDocumentRequestResponse(req *model.DocumentRequest) documentRequestResponse {
	input := req.InputData
	if input == nil {
		input = map[string]any{}
	}
	return documentRequestResponse{
		ID:               req.ID,
		UserID:           req.UserID,
		DocumentType:     req.DocumentType,
		InputData:        input,
		GeneratedContent: req.GeneratedContent,
		CreatedAt:        req.CreatedAt,
	}
}
