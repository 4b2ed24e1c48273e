package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docman/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context, page model.Page) ([]*model.User, error)
	Get(ctx context.Context, requesterID, id string) (*model.User, error)
	Update(ctx context.Context, requesterID, id string, patch model.UserPatch) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// user、documents、templates、document_requestsとファイル本体を削除する。
	Withdraw(ctx context.Context, requesterID, id string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service  UserServiceInterface
	resolver CurrentUserResolver
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, resolver CurrentUserResolver) *UserHandler {
	return &UserHandler{
		service:  service,
		resolver: resolver,
	}
}

// updateUserRequest はユーザー更新リクエストのボディ。省略したフィールドは変更しない。
type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
}

// List はユーザー一覧を返す。
// GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.resolver.CurrentUser(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}

	users, err := h.service.List(r.Context(), pageFromQuery(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は自分自身のユーザー情報を返す。
// GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.Get(r.Context(), current.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Update は自分自身のユーザー情報を更新する。
// PUT /api/v1/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Update(r.Context(), current.ID, chi.URLParam(r, "id"), model.UserPatch{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/v1/users/{id}
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	current, err := h.resolver.CurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Withdraw(r.Context(), current.ID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
