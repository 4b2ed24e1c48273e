// Package config は環境変数（と任意の.envファイル）からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ストレージバックエンドの種類。
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	AutoMigrate bool

	// Token
	SecretKey      string
	Algorithm      string
	AccessTokenTTL time.Duration
	TokenIssuer    string
	BcryptCost     int

	// Upload
	MaxFileSize       int64
	UploadDir         string
	AllowedExtensions []string

	// Generation
	GeminiAPIKey       string
	GenerationEndpoint string
	GenerationTimeout  time.Duration

	// Storage
	StorageBackend string
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool
	S3PathStyle    bool

	// Cache
	RedisURL     string
	UserCacheTTL time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral  int
	RateLimitGenerate int

	// Server
	ServerPort        string
	CORSAllowedOrigin string
	LogLevel          string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合は、未設定のものをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{}
	var missing []string

	cfg.DatabaseURL = strings.TrimSpace(v.GetString("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		dsn, unset := databaseURLFromParts(v)
		cfg.DatabaseURL = dsn
		missing = append(missing, unset...)
	}

	cfg.SecretKey = v.GetString("SECRET_KEY")
	if cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.AutoMigrate = v.GetBool("AUTO_MIGRATE")
	cfg.Algorithm = strings.ToUpper(v.GetString("ALGORITHM"))
	cfg.AccessTokenTTL = time.Duration(positiveInt(v, "ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute
	cfg.TokenIssuer = v.GetString("TOKEN_ISSUER")
	cfg.BcryptCost = positiveInt(v, "BCRYPT_COST", 10)

	cfg.MaxFileSize = v.GetInt64("MAX_FILE_SIZE")
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10485760
	}
	cfg.UploadDir = v.GetString("UPLOAD_DIR")
	cfg.AllowedExtensions = splitList(v.GetString("ALLOWED_EXTENSIONS"))

	cfg.GeminiAPIKey = v.GetString("GEMINI_API_KEY")
	cfg.GenerationEndpoint = v.GetString("GENERATION_ENDPOINT")
	cfg.GenerationTimeout = positiveDuration(v, "GENERATION_TIMEOUT", 90*time.Second)

	cfg.StorageBackend = strings.ToLower(v.GetString("STORAGE_BACKEND"))
	cfg.S3Endpoint = v.GetString("S3_ENDPOINT")
	cfg.S3Region = v.GetString("S3_REGION")
	cfg.S3Bucket = v.GetString("S3_BUCKET")
	cfg.S3AccessKey = v.GetString("S3_ACCESS_KEY")
	cfg.S3SecretKey = v.GetString("S3_SECRET_KEY")
	cfg.S3UseSSL = v.GetBool("S3_USE_SSL")
	cfg.S3PathStyle = v.GetBool("S3_PATH_STYLE")

	cfg.RedisURL = v.GetString("REDIS_URL")
	cfg.UserCacheTTL = positiveDuration(v, "USER_CACHE_TTL", 5*time.Minute)

	cfg.RateLimitGeneral = positiveInt(v, "RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGenerate = positiveInt(v, "RATE_LIMIT_GENERATE", 10)

	cfg.ServerPort = v.GetString("SERVER_PORT")
	cfg.CORSAllowedOrigin = v.GetString("CORS_ALLOWED_ORIGIN")
	cfg.LogLevel = v.GetString("LOG_LEVEL")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults は任意項目の既定値を設定する。
func setDefaults(v *viper.Viper) {
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("AUTO_MIGRATE", false)

	v.SetDefault("ALGORITHM", "HS256")
	v.SetDefault("TOKEN_ISSUER", "docman")

	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("ALLOWED_EXTENSIONS", "pdf,doc,docx,txt,rtf")

	v.SetDefault("STORAGE_BACKEND", StorageLocal)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_BUCKET", "docman")
	v.SetDefault("S3_USE_SSL", true)

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "*")
	v.SetDefault("LOG_LEVEL", "info")
}

// validate は値の組み合わせを検証する。
func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageLocal:
	case StorageS3:
		if c.S3Endpoint == "" {
			return errors.New("S3_ENDPOINT is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %q", c.StorageBackend)
	}
	if len(c.AllowedExtensions) == 0 {
		return errors.New("ALLOWED_EXTENSIONS must not be empty")
	}
	return nil
}

// databaseURLFromParts はPOSTGRES_*からPostgreSQLの接続URLを組み立てる。
// 未設定の項目があれば、その名前を返す。
func databaseURLFromParts(v *viper.Viper) (string, []string) {
	var unset []string
	get := func(key string) string {
		val := strings.TrimSpace(v.GetString(key))
		if val == "" {
			unset = append(unset, key)
		}
		return val
	}

	user := get("POSTGRES_USER")
	password := get("POSTGRES_PASSWORD")
	host := get("POSTGRES_HOST")
	port := get("POSTGRES_PORT")
	name := get("POSTGRES_DB")
	if len(unset) > 0 {
		// どちらの指定方法も満たしていないことが分かるように両方を挙げる
		return "", append([]string{"DATABASE_URL"}, unset...)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + name,
		RawQuery: "sslmode=disable",
	}
	return u.String(), nil
}

// String は秘密情報をマスクした設定の一覧を返す。起動ログ用。
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DatabaseURL=%s ", redactURL(c.DatabaseURL))
	fmt.Fprintf(&sb, "AutoMigrate=%t ", c.AutoMigrate)
	fmt.Fprintf(&sb, "SecretKey=%s ", mask(c.SecretKey))
	fmt.Fprintf(&sb, "Algorithm=%s AccessTokenTTL=%s TokenIssuer=%s ", c.Algorithm, c.AccessTokenTTL, c.TokenIssuer)
	fmt.Fprintf(&sb, "MaxFileSize=%d UploadDir=%s AllowedExtensions=%v ", c.MaxFileSize, c.UploadDir, c.AllowedExtensions)
	fmt.Fprintf(&sb, "GeminiAPIKey=%s GenerationTimeout=%s ", mask(c.GeminiAPIKey), c.GenerationTimeout)
	fmt.Fprintf(&sb, "StorageBackend=%s S3Endpoint=%s S3Bucket=%s ", c.StorageBackend, c.S3Endpoint, c.S3Bucket)
	fmt.Fprintf(&sb, "S3AccessKey=%s S3SecretKey=%s ", mask(c.S3AccessKey), mask(c.S3SecretKey))
	fmt.Fprintf(&sb, "RedisURL=%s ", redactURL(c.RedisURL))
	fmt.Fprintf(&sb, "RateLimitGeneral=%d RateLimitGenerate=%d ", c.RateLimitGeneral, c.RateLimitGenerate)
	fmt.Fprintf(&sb, "ServerPort=%s CORSAllowedOrigin=%s LogLevel=%s", c.ServerPort, c.CORSAllowedOrigin, c.LogLevel)
	return sb.String()
}

func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}

// redactURL は接続URLのパスワード部分を伏せる。
func redactURL(raw string) string {
	if raw == "" {
		return "(empty)"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "********"
	}
	return u.Redacted()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// positiveInt は正の整数を返す。未設定・不正値・0以下は既定値にする。
func positiveInt(v *viper.Viper, key string, defaultVal int) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return defaultVal
}

// positiveDuration は"90s"のような期間を返す。未設定・不正値・0以下は既定値にする。
func positiveDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
