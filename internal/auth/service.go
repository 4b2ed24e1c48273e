// Package auth はパスワード認証、トークンの発行・検証、認証済みユーザーの解決を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/docman/internal/model"
	"github.com/hitoshi/docman/internal/repository"
)

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// AccessToken はログイン成功時に返すトークン。
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // 秒
}

// Service はユーザー登録とログインのビジネスロジックを提供する。
type Service struct {
	users  repository.UserRepository
	hasher *Hasher
	tokens *TokenService
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, hasher *Hasher, tokens *TokenService) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register は新しいユーザーを作成する。
// メールアドレスは正規化して保存し、既に登録済みの場合はEMAIL_ALREADY_REGISTEREDを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email, err := ValidateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, model.NewInvalidRequestError("password is required")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyRegisteredError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, model.NewInvalidRequestError(err.Error())
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     in.FullName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// 同時登録で一意制約に引っかかった場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、アクセストークンを発行する。
// ユーザーが存在しない場合とパスワード不一致の場合は区別せずINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*AccessToken, error) {
	normalized := model.NormalizeEmail(email)
	if normalized == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil || !s.hasher.Verify(password, user.PasswordHash) {
		slog.Warn("login failed")
		return nil, model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(user.Email, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &AccessToken{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.DefaultTTL().Seconds()),
	}, nil
}

// ValidateEmail はメールアドレスの形式を検証し、正規化した値を返す。
func ValidateEmail(email string) (string, error) {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return "", model.NewInvalidRequestError("email is required")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", model.NewInvalidRequestError("email is invalid")
	}
	return normalized, nil
}
