package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/docman/internal/middleware"
	"github.com/hitoshi/docman/internal/model"
)

// UserFinder はsubjectからユーザーを引くための検索インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// UserCache はユーザーのキャッシュ。見つからない場合はnil, nilを返す。
// cache.UserCacheが実装する。
type UserCache interface {
	Get(ctx context.Context, email string) (*model.User, error)
	Set(ctx context.Context, user *model.User) error
}

// Resolver は認証済みsubjectを永続化されたユーザーに解決する。
type Resolver struct {
	users  UserFinder
	cache  UserCache
	logger *slog.Logger
}

// NewResolver はResolverを生成する。cacheはnilでもよい。
func NewResolver(users UserFinder, cache UserCache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{users: users, cache: cache, logger: logger}
}

// LoadUser はsubject（メールアドレス）に対応するユーザーを返す。
// ユーザーが存在しない場合は未認証エラー（PRINCIPAL_NOT_FOUND）を返す。
// ストアの障害はそのままラップして返す。
func (r *Resolver) LoadUser(ctx context.Context, subject string) (*model.User, error) {
	email := model.NormalizeEmail(subject)
	if email == "" {
		return nil, model.NewUnauthorizedError()
	}

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, email)
		if err != nil {
			// キャッシュ障害時はDBにフォールバックする
			r.logger.Warn("user cache lookup failed",
				slog.String("error", err.Error()),
			)
		} else if cached != nil {
			return cached, nil
		}
	}

	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		r.logger.Warn("token subject has no matching user")
		return nil, model.NewPrincipalNotFoundError()
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, user); err != nil {
			r.logger.Warn("user cache store failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return user, nil
}

// CurrentUser はリクエストコンテキストの認証済みsubjectからユーザーを解決する。
func (r *Resolver) CurrentUser(ctx context.Context) (*model.User, error) {
	subject, err := middleware.RequireSubject(ctx)
	if err != nil {
		return nil, err
	}
	return r.LoadUser(ctx, subject)
}
