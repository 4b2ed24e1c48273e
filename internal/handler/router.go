package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docman/internal/middleware"
)

// HTTPMetrics はルーター全体で使うメトリクスの記録先。metrics.Collectorが実装する。
type HTTPMetrics interface {
	middleware.RequestRecorder
	middleware.RejectionRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	PublicPaths       []string // nilの場合はmiddleware.DefaultPublicPaths()
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           HTTPMetrics  // nilの場合は記録しない
	MetricsHandler    http.Handler // nilの場合は/metricsを公開しない

	// 認証
	Resolver    CurrentUserResolver
	AuthService AuthServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// ドキュメント
	DocumentService DocumentServiceInterface
	MaxFileSize     int64

	// テンプレート
	TemplateService TemplateServiceInterface

	// 生成リクエスト
	DocumentRequestService DocumentRequestServiceInterface

	// ヘルスチェック
	DB      Pinger
	Version string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → AuthGate → RateLimit(General)
//
// 公開パスの判定は認証ゲートが完全一致で行うため、全ルートを同じチェーンに配置する。
// 公開の生成エンドポイントには、クライアントIP単位の生成専用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publicPaths := deps.PublicPaths
	if publicPaths == nil {
		publicPaths = middleware.DefaultPublicPaths()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	gateCfg := middleware.AuthGateConfig{PublicPaths: publicPaths}
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
		gateCfg.Metrics = deps.Metrics
	}
	r.Use(middleware.NewAuthGate(deps.TokenVerifier, gateCfg, logger))

	generateLimit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		generateLimit = deps.RateLimiter.GenerateMiddleware()
	}

	healthHandler := NewHealthHandler(deps.DB, deps.Version)
	authHandler := NewAuthHandler(deps.AuthService, deps.Resolver)
	userHandler := NewUserHandler(deps.UserService, deps.Resolver)
	docHandler := NewDocumentHandler(deps.DocumentService, deps.Resolver, deps.MaxFileSize)
	tmplHandler := NewTemplateHandler(deps.TemplateService, deps.Resolver)
	reqHandler := NewDocumentRequestHandler(deps.DocumentRequestService, deps.Resolver)

	// --- 公開ルート ---
	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Get("/me", authHandler.Me)
		})

		// ユーザー管理
		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Put("/", userHandler.Update)
				r.Delete("/", userHandler.Withdraw)
			})
		})

		// ドキュメント管理（固定パスは/{id}より先に登録する）
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", docHandler.List)
			r.Post("/upload", docHandler.Upload)
			r.Get("/search", docHandler.Search)
			r.Get("/stats", docHandler.Stats)

			// テンプレート
			r.Route("/templates", func(r chi.Router) {
				r.Get("/", tmplHandler.List)
				r.Post("/", tmplHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", tmplHandler.Get)
					r.Put("/", tmplHandler.Update)
					r.Delete("/", tmplHandler.Delete)
					r.Post("/validate", tmplHandler.Validate)
					r.Post("/generate", tmplHandler.Generate)
				})
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", docHandler.Get)
				r.Put("/", docHandler.Update)
				r.Delete("/", docHandler.Delete)
				r.Get("/download", docHandler.Download)
			})
		})

		// 生成リクエスト
		r.Route("/document-requests", func(r chi.Router) {
			r.Get("/", reqHandler.List)
			r.Post("/", reqHandler.Create)
			r.Get("/stats/summary", reqHandler.Stats)
			r.With(generateLimit).Post("/generate", reqHandler.Generate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", reqHandler.Get)
				r.Put("/", reqHandler.Update)
				r.Delete("/", reqHandler.Delete)
			})
		})

		// 履歴書生成
		r.Post("/cv/generate", reqHandler.GenerateCV)
	})

	return r
}
