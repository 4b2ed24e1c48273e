package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン検証の失敗理由。呼び出し側から見ればいずれも「認証拒否」だが、
// ログで原因を区別できるようにerrors.Isで判定可能なセンチネルとして公開する。
var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenSignature = errors.New("token signature is invalid")
	ErrTokenExpired   = errors.New("token is expired")
)

// TokenError はトークン検証の失敗を表す。
// errors.IsではKind（上記センチネルのいずれか）に一致し、Causeにjwtが返した詳細を保持する。
type TokenError struct {
	Kind  error
	cause error
}

func (e *TokenError) Error() string { return e.Kind.Error() }

func (e *TokenError) Unwrap() error { return e.Kind }

// Cause はjwtライブラリが返した元のエラーを返す。
func (e *TokenError) Cause() error { return e.cause }

// DefaultTokenTTL は有効期間の指定がない場合のトークン有効期間。
const DefaultTokenTTL = 30 * time.Minute

// TokenConfig はトークンサービスの設定。
type TokenConfig struct {
	Secret     string
	Algorithm  string // HS256, HS384, HS512 のいずれか
	Issuer     string
	DefaultTTL time.Duration
}

// TokenService は署名付きの期限つきセッショントークン（JWT）を発行・検証する。
// ステートレスであり、失効リストは持たない。
type TokenService struct {
	secret     []byte
	method     jwt.SigningMethod
	issuer     string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTokenService はTokenServiceを生成する。
// 秘密鍵が空、またはHMAC以外のアルゴリズムが指定された場合はエラーを返す。
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &TokenService{
		secret:     []byte(cfg.Secret),
		method:     method,
		issuer:     cfg.Issuer,
		defaultTTL: ttl,
		now:        time.Now,
	}, nil
}

// Issue はsubjectと「現在時刻+ttl」の有効期限を埋め込んだトークンを発行する。
// ttlが0以下の場合は設定済みのデフォルト有効期間を使用する。
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.now()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、埋め込まれたsubjectを返す。
// 失敗時はErrTokenMalformed、ErrTokenSignature、ErrTokenExpiredのいずれかをKindとする*TokenErrorを返す。
// subjectが空であること自体はここでは拒否しない。
func (s *TokenService) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return "", classifyTokenError(err)
	}

	return claims.Subject, nil
}

// DefaultTTL は設定済みのデフォルト有効期間を返す。
func (s *TokenService) DefaultTTL() time.Duration {
	return s.defaultTTL
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &TokenError{Kind: ErrTokenExpired, cause: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &TokenError{Kind: ErrTokenSignature, cause: err}
	default:
		return &TokenError{Kind: ErrTokenMalformed, cause: err}
	}
}
