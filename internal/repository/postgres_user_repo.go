package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/docman/internal/model"
)

var userColumns = []string{"id", "email", "full_name", "password_hash", "created_at", "updated_at"}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, now: time.Now}
}

func scanUser(u *model.User) func(rowScanner) error {
	return func(row rowScanner) error {
		return row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	}
}

func (r *PostgresUserRepo) findOne(ctx context.Context, q queryer, where sq.Eq, suffix string) (*model.User, error) {
	b := psql.Select(userColumns...).From("users").Where(where)
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	u := &model.User{}
	found, err := queryOne(ctx, q, b, scanUser(u))
	if err != nil || !found {
		return nil, err
	}
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, nil
	}
	u, err := r.findOne(ctx, r.db, sq.Eq{"id": id}, "")
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return u, nil
}

// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := r.findOne(ctx, r.db, sq.Eq{"email": model.NormalizeEmail(email)}, "")
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return u, nil
}

// List はユーザー一覧を作成日時順で返す。
func (r *PostgresUserRepo) List(ctx context.Context, page model.Page) ([]*model.User, error) {
	b := paginate(psql.Select(userColumns...).From("users").OrderBy("created_at ASC", "id ASC"), page)

	users := []*model.User{}
	err := queryAll(ctx, r.db, b, func(row rowScanner) error {
		u := &model.User{}
		if err := scanUser(u)(row); err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	now := r.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	user.Email = model.NormalizeEmail(user.Email)

	b := psql.Insert("users").Columns(userColumns...).
		Values(user.ID, user.Email, user.FullName, user.PasswordHash, user.CreatedAt, user.UpdatedAt)

	if _, err := exec(ctx, r.db, b); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateFunc は行ロックを取得したうえでfnを適用し更新する。
func (r *PostgresUserRepo) UpdateFunc(ctx context.Context, id string, fn func(*model.User) error) (*model.User, error) {
	if !validID(id) {
		return nil, nil
	}
	var updated *model.User

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := r.findOne(ctx, tx, sq.Eq{"id": id}, "FOR UPDATE")
		if err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}
		if u == nil {
			return nil
		}

		if err := fn(u); err != nil {
			return err
		}
		u.Email = model.NormalizeEmail(u.Email)
		u.UpdatedAt = r.now()

		b := psql.Update("users").
			Set("email", u.Email).
			Set("full_name", u.FullName).
			Set("password_hash", u.PasswordHash).
			Set("updated_at", u.UpdatedAt).
			Where(sq.Eq{"id": id})

		if _, err := exec(ctx, tx, b); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByID は指定IDのユーザーを削除し、一緒に削除したドキュメントのファイルキーを返す。
// ユーザー行をロックしてから収集するので、並行してアップロードされたドキュメントも漏れない。
// テンプレートと生成リクエストはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) ([]string, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	var paths []string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := r.findOne(ctx, tx, sq.Eq{"id": id}, "FOR UPDATE")
		if err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}
		if u == nil {
			return ErrNotFound
		}

		docs := psql.Delete("documents").
			Where(sq.Eq{"created_by": id}).
			Suffix("RETURNING file_path")
		err = queryAll(ctx, tx, docs, func(row rowScanner) error {
			var p string
			if err := row.Scan(&p); err != nil {
				return err
			}
			paths = append(paths, p)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete user documents: %w", err)
		}

		if _, err := exec(ctx, tx, psql.Delete("users").Where(sq.Eq{"id": id})); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
