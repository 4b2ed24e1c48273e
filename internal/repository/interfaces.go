// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/docman/internal/model"
)

var (
	// ErrDuplicate は一意制約違反（メールアドレス重複など）を表す。
	ErrDuplicate = errors.New("duplicate key")
	// ErrNotFound は削除対象の行が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List はユーザー一覧を作成日時順で返す。
	List(ctx context.Context, page model.Page) ([]*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateFunc は行ロックを取得したうえでfnにユーザーを渡し、fnが返した後の内容で更新する。
	// 見つからない場合はfnを呼ばずにnilを返す。fnがエラーを返した場合はロールバックする。
	UpdateFunc(ctx context.Context, id string, fn func(*model.User) error) (*model.User, error)

	// DeleteByID は指定IDのユーザーと所有するドキュメントを同一トランザクションで削除し、
	// 削除したドキュメントのファイルキーを返す。存在しない場合はErrNotFoundを返す。
	// テンプレートと生成リクエストはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) ([]string, error)
}

// DocumentRepository はドキュメントメタデータの永続化インターフェース。
type DocumentRepository interface {
	// FindByID は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// ListByOwner は指定ユーザーが所有するドキュメントを新しい順で返す。
	ListByOwner(ctx context.Context, ownerID string, page model.Page) ([]*model.Document, error)

	// ListPublic は公開ドキュメントを新しい順で返す。
	ListPublic(ctx context.Context, page model.Page) ([]*model.Document, error)

	// Search は所有ドキュメントのタイトル・説明を部分一致（大文字小文字無視）で検索する。
	Search(ctx context.Context, ownerID, query string, page model.Page) ([]*model.Document, error)

	// Stats は指定ユーザーのドキュメント統計を返す。
	Stats(ctx context.Context, ownerID string) (*model.DocumentStats, error)

	// Create はドキュメントを作成する。
	Create(ctx context.Context, doc *model.Document) error

	// UpdateFunc は行ロックを取得したうえでfnを適用し更新する。見つからない場合はnilを返す。
	UpdateFunc(ctx context.Context, id string, fn func(*model.Document) error) (*model.Document, error)

	// DeleteFunc は行ロックを取得したうえでfnを呼び、エラーがなければ削除する。
	// 削除した行を返す。見つからない場合はnilを返す。
	DeleteFunc(ctx context.Context, id string, fn func(*model.Document) error) (*model.Document, error)
}

// TemplateRepository はテンプレートの永続化インターフェース。
// 論理削除済み（retired）のテンプレートはどの取得系メソッドからも返らない。
type TemplateRepository interface {
	// FindActiveByID は指定IDのアクティブなテンプレートを取得する。見つからない場合はnilを返す。
	FindActiveByID(ctx context.Context, id string) (*model.Template, error)

	// ListActive はアクティブなテンプレートを新しい順で返す。
	// createdByが空でなければ作成者で絞り込む。
	ListActive(ctx context.Context, createdBy string, page model.Page) ([]*model.Template, error)

	// Create はテンプレートを作成する。
	Create(ctx context.Context, tmpl *model.Template) error

	// UpdateFunc はアクティブな行をロックしてfnを適用し、状態を含めて更新する。
	// 見つからない場合はnilを返す。
	UpdateFunc(ctx context.Context, id string, fn func(*model.Template) error) (*model.Template, error)
}

// DocumentRequestRepository は生成リクエストの永続化インターフェース。
type DocumentRequestRepository interface {
	// FindByID は指定IDの生成リクエストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.DocumentRequest, error)

	// ListByUser は指定ユーザーの生成リクエストを新しい順で返す。
	// documentTypeが空でなければ種別で絞り込む。
	ListByUser(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error)

	// Stats は指定ユーザーの生成リクエスト統計を返す。
	Stats(ctx context.Context, userID string) (*model.DocumentRequestStats, error)

	// Create は生成リクエストを作成する。
	Create(ctx context.Context, req *model.DocumentRequest) error

	// UpdateFunc は行ロックを取得したうえでfnを適用し更新する。見つからない場合はnilを返す。
	UpdateFunc(ctx context.Context, id string, fn func(*model.DocumentRequest) error) (*model.DocumentRequest, error)

	// DeleteFunc は行ロックを取得したうえでfnを呼び、エラーがなければ削除する。
	// 見つからない場合はnilを返す。
	DeleteFunc(ctx context.Context, id string, fn func(*model.DocumentRequest) error) (*model.DocumentRequest, error)
}
