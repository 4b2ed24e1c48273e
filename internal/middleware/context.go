// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/docman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// subjectContextKey は認証済みsubject（正規化済みメールアドレス）を格納するためのキー。
	subjectContextKey = contextKey("subject")
	// requestInfoContextKey はロギングミドルウェアが用意するrequestInfoのキー。
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo は外側のミドルウェアへ内側で確定した情報を伝えるための入れ物。
// 認証ゲートはリクエストを差し替えるため、外側からはコンテキスト経由で値を参照できない。
type requestInfo struct {
	subject string
}

// ContextWithSubject はコンテキストに認証済みsubjectを注入する。
// 認証ゲート以外ではテストでのみ使用する。
func ContextWithSubject(ctx context.Context, subject string) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.subject = subject
	}
	return context.WithValue(ctx, subjectContextKey, subject)
}

// SubjectFromContext はリクエストコンテキストから認証済みsubjectを取得する。
// 公開パスなど認証ゲートを素通りしたリクエストではfalseを返す。
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	if !ok || subject == "" {
		return "", false
	}
	return subject, true
}

// RequireSubject は認証済みsubjectを返す。存在しない場合は未認証エラーを返す。
func RequireSubject(ctx context.Context) (string, error) {
	subject, ok := SubjectFromContext(ctx)
	if !ok {
		return "", model.NewUnauthorizedError()
	}
	return subject, nil
}
