package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docman/internal/document"
	"github.com/hitoshi/docman/internal/model"
)

// multipartOverheadBytes はファイル以外のフォーム項目とmultipart境界に許す余裕。
const multipartOverheadBytes = 1 << 20

// multipartMemoryBytes はParseMultipartFormがメモリに保持する上限。超過分は一時ファイルになる。
const multipartMemoryBytes = 8 << 20

// DocumentServiceInterface はドキュメントハンドラーが必要とするサービスインターフェース。
type DocumentServiceInterface interface {
	Upload(ctx context.Context, ownerID string, in document.UploadInput) (*model.Document, error)
	List(ctx context.Context, requesterID string, publicOnly bool, page model.Page) ([]*model.Document, error)
	Search(ctx context.Context, requesterID, query string, page model.Page) ([]*model.Document, error)
	Stats(ctx context.Context, requesterID string) (*model.DocumentStats, error)
	Get(ctx context.Context, requesterID, id string) (*model.Document, error)
	Open(ctx context.Context, requesterID, id string) (*model.Document, io.ReadCloser, error)
	Update(ctx context.Context, requesterID, id string, patch model.DocumentPatch) (*model.Document, error)
	Delete(ctx context.Context, requesterID, id string) error
}

// DocumentHandler はドキュメント管理のHTTPハンドラー。
type DocumentHandler struct {
	service     DocumentServiceInterface
	resolver    CurrentUserResolver
	maxFileSize int64
}

// NewDocumentHandler はDocumentHandlerを生成する。
// maxFileSizeはリクエストボディの読み取り上限の算出に使う。
func NewDocumentHandler(service DocumentServiceInterface, resolver CurrentUserResolver, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{
		service:     service,
		resolver:    resolver,
		maxFileSize: maxFileSize,
	}
}

// documentResponse はドキュメント情報のAPIレスポンス。
type documentResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FilePath    string    `json:"file_path"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	FileType    string    `json:"file_type"`
	IsPublic    bool      `json:"is_public"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// documentStatsResponse はドキュメント統計のAPIレスポンス。
type documentStatsResponse struct {
	TotalDocuments   int     `json:"total_documents"`
	PublicDocuments  int     `json:"public_documents"`
	PrivateDocuments int     `json:"private_documents"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	TotalSizeMB      float64 `json:"total_size_mb"`
}

// Upload はmultipartフォームのファイルを保存する。
// POST /api/v1/documents/upload
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.maxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverheadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewFileTooLargeError(h.maxFileSize))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("multipart/form-data expected"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("file is required"))
		return
	}
	defer file.Close()

	isPublic := false
	if v := strings.TrimSpace(r.FormValue("is_public")); v != "" {
		isPublic, err = strconv.ParseBool(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("is_public must be a boolean"))
			return
		}
	}

	doc, err := h.service.Upload(r.Context(), current.ID, document.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		IsPublic:    isPublic,
		FileName:    header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Content:     file,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// List はドキュメント一覧を返す。public_only=trueなら公開ドキュメント、それ以外は自分のもの。
// GET /api/v1/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	docs, err := h.service.List(r.Context(), current.ID, boolQuery(r, "public_only"), pageFromQuery(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponses(docs))
}

// Search は自分のドキュメントをタイトル・説明で検索する。
// GET /api/v1/documents/search?q=
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	docs, err := h.service.Search(r.Context(), current.ID, r.URL.Query().Get("q"), pageFromQuery(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponses(docs))
}

// Stats は自分のドキュメント統計を返す。
// GET /api/v1/documents/stats
func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, documentStatsResponse{
		TotalDocuments:   stats.TotalDocuments,
		PublicDocuments:  stats.PublicDocuments,
		PrivateDocuments: stats.PrivateDocuments,
		TotalSizeBytes:   stats.TotalSizeBytes,
		TotalSizeMB:      stats.TotalSizeMB(),
	})
}

// Get はドキュメント詳細を返す。
// GET /api/v1/documents/{id}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	doc, err := h.service.Get(r.Context(), current.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// Download はファイル本体を添付ファイルとして返す。
// GET /api/v1/documents/{id}/download
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	doc, rc, err := h.service.Open(r.Context(), current.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	if doc.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("download interrupted",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Update はドキュメントのメタデータを更新する。
// PUT /api/v1/documents/{id}
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var patch model.DocumentPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	doc, err := h.service.Update(r.Context(), current.ID, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// Delete はドキュメントとファイル本体を削除する。
// DELETE /api/v1/documents/{id}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// --- ヘルパー関数 ---

// toDocumentResponse はmodel.DocumentからAPIレスポンスに変換する。
func toDocumentResponse(d *model.Document) documentResponse {
	return documentResponse{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		FilePath:    d.FilePath,
		FileName:    d.FileName,
		FileSize:    d.FileSize,
		FileType:    d.FileType,
		IsPublic:    d.IsPublic,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func toDocumentResponses(docs []*model.Document) []documentResponse {
	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, toDocumentResponse(d))
	}
	return resp
}
