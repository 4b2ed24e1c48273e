// Package app は設定の読み込みと依存関係の組み立てを行い、サブコマンドを実行する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/docman/internal/auth"
	"github.com/hitoshi/docman/internal/cache"
	"github.com/hitoshi/docman/internal/config"
	"github.com/hitoshi/docman/internal/database"
	"github.com/hitoshi/docman/internal/docrequest"
	"github.com/hitoshi/docman/internal/document"
	"github.com/hitoshi/docman/internal/generation"
	"github.com/hitoshi/docman/internal/handler"
	"github.com/hitoshi/docman/internal/logger"
	"github.com/hitoshi/docman/internal/metrics"
	"github.com/hitoshi/docman/internal/middleware"
	"github.com/hitoshi/docman/internal/repository"
	"github.com/hitoshi/docman/internal/security"
	"github.com/hitoshi/docman/internal/storage"
	"github.com/hitoshi/docman/internal/template"
	"github.com/hitoshi/docman/internal/user"
)

// Version はビルド時に -ldflags "-X .../internal/app.Version=..." で上書きできる。
var Version = "1.0.0"

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", Version),
		slog.String("config", cfg.String()),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	if cfg.AutoMigrate {
		if err := runMigrate(cfg); err != nil {
			return err
		}
	}

	svc, err := buildServer(ctx, cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer svc.Close()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           svc.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// 生成呼び出しのタイムアウトより長くする
		WriteTimeout: cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// server はHTTPハンドラーと、終了時に解放が必要なリソースをまとめる。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	redis       *redis.Client
}

// Close はバックグラウンド処理と外部接続を解放する。
func (s *server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
}

// buildServer はリポジトリ、サービス、ルーターを組み立てる。
// DBへの接続確認は呼び出し側で済ませておくこと。
func buildServer(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) (*server, error) {
	s := &server{}

	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	docRepo := repository.NewPostgresDocumentRepo(db)
	tmplRepo := repository.NewPostgresTemplateRepo(db)
	reqRepo := repository.NewPostgresDocumentRequestRepo(db)

	// 2. ファイルストレージ
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 4. 認証
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.SecretKey,
		Algorithm:  cfg.Algorithm,
		Issuer:     cfg.TokenIssuer,
		DefaultTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	hasher := auth.NewHasher(cfg.BcryptCost)
	authService := auth.NewService(userRepo, hasher, tokens)

	// 5. ユーザーキャッシュ（任意）
	// インターフェースにnilポインタを入れないよう、有効な場合のみ代入する
	var resolverCache auth.UserCache
	var invalidator user.CacheInvalidator
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = client
		userCache := cache.NewUserCache(client, cfg.UserCacheTTL)
		resolverCache = userCache
		invalidator = userCache
		logger.Info("user cache enabled")
	}
	resolver := auth.NewResolver(userRepo, resolverCache, logger)

	// 6. 外部テキスト生成
	guard := security.NewOutboundGuard()
	if cfg.GenerationEndpoint != "" {
		if err := guard.ValidateEndpoint(cfg.GenerationEndpoint); err != nil {
			s.Close()
			return nil, fmt.Errorf("invalid GENERATION_ENDPOINT: %w", err)
		}
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set; generation endpoints will return an explanatory message")
	}
	genClient := generation.NewClient(guard.NewSafeClient(cfg.GenerationTimeout), logger, generation.ClientConfig{
		APIKey:   cfg.GeminiAPIKey,
		Endpoint: cfg.GenerationEndpoint,
		Timeout:  cfg.GenerationTimeout,
	})
	genService := generation.NewService(genClient, collector, logger)

	// 7. ドメインサービス
	userService := user.NewService(userRepo, hasher, blobs, invalidator)
	docService := document.NewService(docRepo, blobs, document.UploadConfig{
		MaxFileSize:       cfg.MaxFileSize,
		AllowedExtensions: cfg.AllowedExtensions,
	}, collector, logger)
	tmplService := template.NewService(tmplRepo, docService, security.NewHTMLSanitizer(), logger)
	reqService := docrequest.NewService(reqRepo, genService)

	// 8. ルーター
	s.rateLimiter = middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitGenerate),
	)

	s.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            logger,
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       s.rateLimiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),

		Resolver:    resolver,
		AuthService: authService,
		UserService: userService,

		DocumentService: docService,
		MaxFileSize:     cfg.MaxFileSize,

		TemplateService:        tmplService,
		DocumentRequestService: reqService,

		DB:      db,
		Version: Version,
	})

	return s, nil
}

// newBlobStore は設定に応じたファイルストレージを生成する。
func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		store, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx, cfg.S3Region); err != nil {
			return nil, err
		}
		slog.Info("using s3 storage", slog.String("endpoint", cfg.S3Endpoint), slog.String("bucket", cfg.S3Bucket))
		return store, nil
	default:
		store, err := storage.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		slog.Info("using local storage", slog.String("dir", store.Dir()))
		return store, nil
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
