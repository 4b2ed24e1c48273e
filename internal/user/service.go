// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/docman/internal/access"
	"github.com/hitoshi/docman/internal/auth"
	"github.com/hitoshi/docman/internal/model"
	"github.com/hitoshi/docman/internal/repository"
)

// PasswordHasher は平文パスワードをハッシュ化する。auth.Hasherが実装する。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// BlobDeleter はファイル本体を削除する。storage.BlobStoreが実装する。
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// CacheInvalidator はユーザーキャッシュを無効化する。cache.UserCacheが実装する。
type CacheInvalidator interface {
	Delete(ctx context.Context, emails ...string) error
}

// Service はユーザー管理のサービス層。
// 参照・更新・退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	blobs    BlobDeleter
	cache    CacheInvalidator
}

// NewService はServiceの新しいインスタンスを生成する。cacheはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	blobs BlobDeleter,
	cache CacheInvalidator,
) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		blobs:    blobs,
		cache:    cache,
	}
}

// List はユーザー一覧を返す。
func (s *Service) List(ctx context.Context, page model.Page) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get は自分自身のユーザー情報を返す。他人のIDはForbidden。
// 要求者は認証済みで存在するため、存在確認より先に本人判定を行う。
func (s *Service) Get(ctx context.Context, requesterID, id string) (*model.User, error) {
	if err := checkSelf(requesterID, id); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Update は自分自身のユーザー情報を更新する。
// メールアドレスは正規化し、パスワードはハッシュ化してから保存する。
func (s *Service) Update(ctx context.Context, requesterID, id string, patch model.UserPatch) (*model.User, error) {
	if err := checkSelf(requesterID, id); err != nil {
		return nil, err
	}

	if patch.Email != nil {
		email, err := auth.ValidateEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		patch.Email = &email
	}

	var passwordHash string
	if patch.Password != nil {
		if *patch.Password == "" {
			return nil, model.NewInvalidRequestError("password must not be empty")
		}
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, model.NewInvalidRequestError(err.Error())
		}
		passwordHash = hash
	}

	var oldEmail string
	user, err := s.userRepo.UpdateFunc(ctx, id, func(u *model.User) error {
		if err := access.CheckWrite(u, requesterID); err != nil {
			return err
		}
		oldEmail = u.Email
		patch.Apply(u, passwordHash)
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	s.invalidate(ctx, oldEmail, user.Email)

	slog.Info("user updated", slog.String("user_id", user.ID))
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: user・documents（+ CASCADE: document_templates, document_requests）→ キャッシュ → ファイル本体
// ファイル本体の削除失敗はログに記録し、退会自体は成功とする。
func (s *Service) Withdraw(ctx context.Context, requesterID, id string) error {
	if err := checkSelf(requesterID, id); err != nil {
		return err
	}

	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", id),
	)

	// 1. ユーザーと所有ドキュメントを削除し、ファイルキーを受け取る
	paths, err := s.userRepo.DeleteByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	// 2. キャッシュを無効化
	s.invalidate(ctx, user.Email)

	// 3. ファイル本体を削除
	failed := 0
	if s.blobs != nil {
		for _, p := range paths {
			if err := s.blobs.Delete(ctx, p); err != nil {
				failed++
				slog.Error("failed to delete blob",
					slog.String("user_id", id),
					slog.String("file_path", p),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", id),
		slog.Int("files", len(paths)),
		slog.Int("failed_files", failed),
	)

	return nil
}

func (s *Service) invalidate(ctx context.Context, emails ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, emails...); err != nil {
		slog.Warn("failed to invalidate user cache", slog.String("error", err.Error()))
	}
}

func checkSelf(requesterID, id string) error {
	if requesterID == "" || requesterID != id {
		return model.NewForbiddenError()
	}
	return nil
}
