package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// 認証拒否の理由。ログの reason 属性とメトリクスのラベルに使う。
const (
	RejectMissingHeader   = "missing_header"
	RejectMalformedHeader = "malformed_header"
	RejectInvalidScheme   = "invalid_scheme"
	RejectInvalidToken    = "invalid_token"
	RejectMissingSubject  = "missing_subject"
)

// TokenVerifier はベアラートークンを検証してsubjectを返す。
// auth.TokenServiceが実装する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RejectionRecorder は認証拒否を記録する。metrics.Collectorが実装する。
type RejectionRecorder interface {
	RecordAuthRejection(reason string)
}

// AuthGateConfig は認証ゲートの設定。
type AuthGateConfig struct {
	// PublicPaths は認証不要なパスの一覧。完全一致で判定し、末尾スラッシュは無視する。
	PublicPaths []string
	// Metrics はnilでもよい。
	Metrics RejectionRecorder
}

// DefaultPublicPaths は認証不要なパスの既定一覧を返す。
func DefaultPublicPaths() []string {
	return []string{
		"/",
		"/health",
		"/metrics",
		"/api/v1/auth/register",
		"/api/v1/auth/login",
		"/api/v1/document-requests/generate",
	}
}

// NewAuthGate は全リクエストに対してベアラートークン認証を行うミドルウェアを返す。
// 公開パスはそのまま通過させ、それ以外はAuthorizationヘッダーを検証して
// subjectをコンテキストに注入する。拒否時は401とWWW-Authenticateヘッダーを返す。
func NewAuthGate(verifier TokenVerifier, cfg AuthGateConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	public := make(map[string]struct{}, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[normalizePath(p)] = struct{}{}
	}

	reject := func(w http.ResponseWriter, r *http.Request, reason, msg string, attrs ...any) {
		args := append([]any{
			slog.String("reason", reason),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		}, attrs...)
		logger.Warn(msg, args...)

		if cfg.Metrics != nil {
			cfg.Metrics.RecordAuthRejection(reason)
		}
		WriteUnauthorized(w)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[normalizePath(r.URL.Path)]; ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				reject(w, r, RejectMissingHeader, "authorization header missing")
				return
			}

			fields := strings.Fields(header)
			if len(fields) != 2 {
				reject(w, r, RejectMalformedHeader, "authorization header malformed")
				return
			}
			if !strings.EqualFold(fields[0], "bearer") {
				reject(w, r, RejectInvalidScheme, "invalid authentication scheme",
					slog.String("scheme", fields[0]),
				)
				return
			}

			subject, err := verifier.Verify(fields[1])
			if err != nil {
				attrs := []any{slog.String("error", err.Error())}
				var detailed interface{ Cause() error }
				if errors.As(err, &detailed) && detailed.Cause() != nil {
					attrs = append(attrs, slog.String("cause", detailed.Cause().Error()))
				}
				reject(w, r, RejectInvalidToken, "invalid or expired token", attrs...)
				return
			}
			if subject == "" {
				reject(w, r, RejectMissingSubject, "token payload has no subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
		})
	}
}

// normalizePath は末尾スラッシュを取り除く。ルート "/" はそのまま返す。
func normalizePath(p string) string {
	if len(p) > 1 {
		return strings.TrimRight(p, "/")
	}
	return p
}
