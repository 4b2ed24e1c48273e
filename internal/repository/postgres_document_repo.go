package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/docman/internal/model"
)

var documentColumns = []string{
	"id", "title", "description", "file_path", "file_name", "file_size",
	"file_type", "is_public", "created_by", "created_at", "updated_at",
}

// PostgresDocumentRepo はPostgreSQLを使用したドキュメントメタデータのリポジトリ。
type PostgresDocumentRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db, now: time.Now}
}

func scanDocument(d *model.Document) func(rowScanner) error {
	return func(row rowScanner) error {
		return row.Scan(
			&d.ID, &d.Title, &d.Description, &d.FilePath, &d.FileName, &d.FileSize,
			&d.FileType, &d.IsPublic, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
		)
	}
}

func (r *PostgresDocumentRepo) findOne(ctx context.Context, q queryer, id, suffix string) (*model.Document, error) {
	b := psql.Select(documentColumns...).From("documents").Where(sq.Eq{"id": id})
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	d := &model.Document{}
	found, err := queryOne(ctx, q, b, scanDocument(d))
	if err != nil || !found {
		return nil, err
	}
	return d, nil
}

func (r *PostgresDocumentRepo) list(ctx context.Context, where sq.Sqlizer, page model.Page) ([]*model.Document, error) {
	b := paginate(psql.Select(documentColumns...).From("documents").
		Where(where).
		OrderBy("created_at DESC", "id DESC"), page)

	docs := []*model.Document{}
	err := queryAll(ctx, r.db, b, func(row rowScanner) error {
		d := &model.Document{}
		if err := scanDocument(d)(row); err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	return docs, err
}

// FindByID は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	if !validID(id) {
		return nil, nil
	}
	d, err := r.findOne(ctx, r.db, id, "")
	if err != nil {
		return nil, fmt.Errorf("failed to find document by ID: %w", err)
	}
	return d, nil
}

// ListByOwner は指定ユーザーが所有するドキュメントを新しい順で返す。
func (r *PostgresDocumentRepo) ListByOwner(ctx context.Context, ownerID string, page model.Page) ([]*model.Document, error) {
	docs, err := r.list(ctx, sq.Eq{"created_by": ownerID}, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents by owner: %w", err)
	}
	return docs, nil
}

// ListPublic は公開ドキュメントを新しい順で返す。
func (r *PostgresDocumentRepo) ListPublic(ctx context.Context, page model.Page) ([]*model.Document, error) {
	docs, err := r.list(ctx, sq.Eq{"is_public": true}, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list public documents: %w", err)
	}
	return docs, nil
}

// Search は所有ドキュメントのタイトル・説明を部分一致（大文字小文字無視）で検索する。
func (r *PostgresDocumentRepo) Search(ctx context.Context, ownerID, query string, page model.Page) ([]*model.Document, error) {
	pattern := likePattern(query)
	where := sq.And{
		sq.Eq{"created_by": ownerID},
		sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"description": pattern},
		},
	}
	docs, err := r.list(ctx, where, page)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return docs, nil
}

// Stats は指定ユーザーのドキュメント統計を返す。
func (r *PostgresDocumentRepo) Stats(ctx context.Context, ownerID string) (*model.DocumentStats, error) {
	b := psql.Select(
		"COUNT(*)",
		"COUNT(*) FILTER (WHERE is_public)",
		"COALESCE(SUM(file_size), 0)",
	).From("documents").Where(sq.Eq{"created_by": ownerID})

	stats := &model.DocumentStats{}
	_, err := queryOne(ctx, r.db, b, func(row rowScanner) error {
		return row.Scan(&stats.TotalDocuments, &stats.PublicDocuments, &stats.TotalSizeBytes)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document stats: %w", err)
	}
	stats.PrivateDocuments = stats.TotalDocuments - stats.PublicDocuments
	return stats, nil
}

// Create はドキュメントを作成する。
func (r *PostgresDocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now()
	}
	doc.UpdatedAt = doc.CreatedAt

	b := psql.Insert("documents").Columns(documentColumns...).Values(
		doc.ID, doc.Title, doc.Description, doc.FilePath, doc.FileName, doc.FileSize,
		doc.FileType, doc.IsPublic, doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt,
	)
	if _, err := exec(ctx, r.db, b); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// UpdateFunc は行ロックを取得したうえでfnを適用し更新する。
// 所有者とファイル情報は更新対象に含めない。
func (r *PostgresDocumentRepo) UpdateFunc(ctx context.Context, id string, fn func(*model.Document) error) (*model.Document, error) {
	if !validID(id) {
		return nil, nil
	}
	var updated *model.Document

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		d, err := r.findOne(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return fmt.Errorf("failed to lock document: %w", err)
		}
		if d == nil {
			return nil
		}
		if err := fn(d); err != nil {
			return err
		}
		d.UpdatedAt = r.now()

		b := psql.Update("documents").
			Set("title", d.Title).
			Set("description", d.Description).
			Set("is_public", d.IsPublic).
			Set("updated_at", d.UpdatedAt).
			Where(sq.Eq{"id": id})
		if _, err := exec(ctx, tx, b); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteFunc は行ロックを取得したうえでfnを呼び、エラーがなければ削除する。
func (r *PostgresDocumentRepo) DeleteFunc(ctx context.Context, id string, fn func(*model.Document) error) (*model.Document, error) {
	if !validID(id) {
		return nil, nil
	}
	var deleted *model.Document

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		d, err := r.findOne(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return fmt.Errorf("failed to lock document: %w", err)
		}
		if d == nil {
			return nil
		}
		if err := fn(d); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, psql.Delete("documents").Where(sq.Eq{"id": id})); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		deleted = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

var _ DocumentRepository = (*PostgresDocumentRepo)(nil)
