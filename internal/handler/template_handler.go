package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docman/internal/model"
	"github.com/hitoshi/docman/internal/renderer"
	"github.com/hitoshi/docman/internal/template"
)

// TemplateServiceInterface はテンプレートハンドラーが必要とするサービスインターフェース。
type TemplateServiceInterface interface {
	Create(ctx context.Context, ownerID string, in template.CreateInput) (*model.Template, error)
	List(ctx context.Context, requesterID string, mine bool, page model.Page) ([]*model.Template, error)
	Get(ctx context.Context, requesterID, id string) (*model.Template, error)
	Update(ctx context.Context, requesterID, id string, patch model.TemplatePatch) (*model.Template, error)
	Retire(ctx context.Context, requesterID, id string) error
	Validate(ctx context.Context, requesterID, id string, vars map[string]any) (renderer.Validation, error)
	Generate(ctx context.Context, requesterID, id string, in template.GenerateInput) (*model.Document, error)
}

// TemplateHandler はテンプレート管理のHTTPハンドラー。
type TemplateHandler struct {
	service  TemplateServiceInterface
	resolver CurrentUserResolver
}

// NewTemplateHandler はTemplateHandlerを生成する。
func NewTemplateHandler(service TemplateServiceInterface, resolver CurrentUserResolver) *TemplateHandler {
	return &TemplateHandler{
		service:  service,
		resolver: resolver,
	}
}

// templateRequest はテンプレート作成・更新リクエストのボディ。
// variablesはJSONの任意の値（文字列またはオブジェクト）を受け付ける。
type templateRequest struct {
	Name            *string         `json:"name"`
	Description     *string         `json:"description"`
	TemplateContent *string         `json:"template_content"`
	Variables       json.RawMessage `json:"variables"`
}

// variablesRequest はvalidateリクエストのボディ。
type variablesRequest struct {
	Variables map[string]any `json:"variables"`
}

// generateTemplateRequest はgenerateリクエストのボディ。
type generateTemplateRequest struct {
	Variables    map[string]any `json:"variables"`
	OutputFormat string         `json:"output_format"`
	Strict       bool           `json:"strict"`
}

// templateResponse はテンプレート情報のAPIレスポンス。
type templateResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	TemplateContent string          `json:"template_content"`
	Variables       json.RawMessage `json:"variables"`
	Status          string          `json:"status"`
	IsActive        bool            `json:"is_active"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Create はテンプレートを作成する。
// POST /api/v1/documents/templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tmpl, err := h.service.Create(r.Context(), current.ID, template.CreateInput{
		Name:            deref(req.Name),
		Description:     deref(req.Description),
		TemplateContent: deref(req.TemplateContent),
		Variables:       deref(variablesToText(req.Variables)),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(tmpl))
}

// List はアクティブなテンプレート一覧を返す。mine=trueなら自分のものに限る。
// GET /api/v1/documents/templates
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	tmpls, err := h.service.List(r.Context(), current.ID, boolQuery(r, "mine"), pageFromQuery(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]templateResponse, 0, len(tmpls))
	for _, t := range tmpls {
		resp = append(resp, toTemplateResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はテンプレート詳細を返す。
// GET /api/v1/documents/templates/{id}
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	tmpl, err := h.service.Get(r.Context(), current.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tmpl))
}

// Update はテンプレートを更新する。
// PUT /api/v1/documents/templates/{id}
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tmpl, err := h.service.Update(r.Context(), current.ID, chi.URLParam(r, "id"), model.TemplatePatch{
		Name:            req.Name,
		Description:     req.Description,
		TemplateContent: req.TemplateContent,
		Variables:       variablesToText(req.Variables),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tmpl))
}

// Delete はテンプレートを論理削除する。
// DELETE /api/v1/documents/templates/{id}
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Retire(r.Context(), current.ID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate はテンプレートに必要な変数が揃っているかを返す。
// POST /api/v1/documents/templates/{id}/validate
func (h *TemplateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req variablesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.service.Validate(r.Context(), current.ID, chi.URLParam(r, "id"), req.Variables)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Generate はテンプレートから文書を生成し、非公開ドキュメントとして保存する。
// POST /api/v1/documents/templates/{id}/generate
func (h *TemplateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req generateTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	doc, err := h.service.Generate(r.Context(), current.ID, chi.URLParam(r, "id"), template.GenerateInput{
		Variables:    req.Variables,
		OutputFormat: req.OutputFormat,
		Strict:       req.Strict,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// --- ヘルパー関数 ---

// toTemplateResponse はmodel.TemplateからAPIレスポンスに変換する。
func toTemplateResponse(t *model.Template) templateResponse {
	return templateResponse{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		TemplateContent: t.TemplateContent,
		Variables:       variablesToJSON(t.Variables),
		Status:          string(t.Status),
		IsActive:        t.IsActive(),
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// variablesToText はリクエストのvariablesを保存用の文字列にする。
// 省略時はnil、JSON文字列とnullは文字列値、それ以外はJSON表現そのものを返す。
func variablesToText(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return &s
	}
	text := string(raw)
	return &text
}

// variablesToJSON は保存された文字列をレスポンス用のJSON値にする。
// 有効なJSONオブジェクト・配列はそのまま、それ以外は文字列として返す。
func variablesToJSON(text string) json.RawMessage {
	if text == "" {
		return json.RawMessage("null")
	}
	if (text[0] == '{' || text[0] == '[') && json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	b, _ := json.Marshal(text)
	return b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
