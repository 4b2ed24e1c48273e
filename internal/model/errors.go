// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, document, generation, system
	Action   string // ユーザー向け対処方法
	Details  any    // 任意の補足情報（不足変数の一覧など）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized             = "UNAUTHORIZED"
	ErrCodePrincipalNotFound        = "PRINCIPAL_NOT_FOUND"
	ErrCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	ErrCodeForbidden                = "FORBIDDEN"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
	ErrCodeDocumentNotFound         = "DOCUMENT_NOT_FOUND"
	ErrCodeTemplateNotFound         = "TEMPLATE_NOT_FOUND"
	ErrCodeDocumentRequestNotFound  = "DOCUMENT_REQUEST_NOT_FOUND"
	ErrCodeFileNotFound             = "FILE_NOT_FOUND"
	ErrCodeEmailAlreadyRegistered   = "EMAIL_ALREADY_REGISTERED"
	ErrCodeInvalidRequest           = "INVALID_REQUEST"
	ErrCodeFileTooLarge             = "FILE_TOO_LARGE"
	ErrCodeFileTypeNotAllowed       = "FILE_TYPE_NOT_ALLOWED"
	ErrCodeMissingTemplateVariables = "MISSING_TEMPLATE_VARIABLES"
	ErrCodeInternal                 = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewPrincipalNotFoundError はトークンは有効だが対応するユーザーが存在しない場合のエラーを生成する。
// ハンドラーでは未認証として扱う。
func NewPrincipalNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePrincipalNotFound,
		Message:  "認証情報に対応するユーザーが存在しません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードの誤りを表すエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "リソースの所有者に確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewDocumentNotFoundError はドキュメント未検出エラーを生成する。
func NewDocumentNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  fmt.Sprintf("指定されたドキュメントが見つかりません: %s", id),
		Category: "document",
		Action:   "ドキュメントIDを確認してください。",
	}
}

// NewTemplateNotFoundError はテンプレート未検出エラーを生成する。
// 論理削除済みテンプレートもこのエラーになる。
func NewTemplateNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeTemplateNotFound,
		Message:  fmt.Sprintf("指定されたテンプレートが見つかりません: %s", id),
		Category: "document",
		Action:   "テンプレートIDを確認してください。",
	}
}

// NewDocumentRequestNotFoundError は生成リクエスト未検出エラーを生成する。
func NewDocumentRequestNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentRequestNotFound,
		Message:  fmt.Sprintf("指定された生成リクエストが見つかりません: %s", id),
		Category: "document",
		Action:   "リクエストIDを確認してください。",
	}
}

// NewFileNotFoundError はメタデータはあるが実ファイルが存在しない場合のエラーを生成する。
func NewFileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeFileNotFound,
		Message:  "ファイルが見つかりません。",
		Category: "document",
		Action:   "ファイルを再アップロードしてください。",
	}
}

// NewEmailAlreadyRegisteredError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInvalidRequestError は入力値の不正を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewFileTooLargeError はアップロードサイズ超過エラーを生成する。
func NewFileTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", maxBytes),
		Category: "validation",
		Action:   "ファイルサイズを小さくしてから再度アップロードしてください。",
	}
}

// NewFileTypeNotAllowedError は許可されていない拡張子のエラーを生成する。
func NewFileTypeNotAllowedError(allowed []string) *APIError {
	return &APIError{
		Code:     ErrCodeFileTypeNotAllowed,
		Message:  fmt.Sprintf("このファイル形式はアップロードできません。許可されている形式: %s", strings.Join(allowed, ", ")),
		Category: "validation",
		Action:   "許可されている形式のファイルを選択してください。",
	}
}

// NewMissingTemplateVariablesError はテンプレート変数不足エラーを生成する。
func NewMissingTemplateVariablesError(missing []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingTemplateVariables,
		Message:  fmt.Sprintf("テンプレート変数が不足しています: %s", strings.Join(missing, ", ")),
		Category: "validation",
		Action:   "不足している変数を指定してください。",
		Details:  map[string]any{"missing": missing},
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// IsUnauthorized はエラーコードが未認証系かを返す。
func (e *APIError) IsUnauthorized() bool {
	switch e.Code {
	case ErrCodeUnauthorized, ErrCodePrincipalNotFound, ErrCodeInvalidCredentials:
		return true
	}
	return false
}
