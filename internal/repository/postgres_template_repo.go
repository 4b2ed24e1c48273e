package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/docman/internal/model"
)

var templateColumns = []string{
	"id", "name", "description", "template_content", "variables",
	"status", "created_by", "created_at", "updated_at",
}

// PostgresTemplateRepo はPostgreSQLを使用したテンプレートリポジトリ。
// 論理削除済みの行はどの取得系クエリにも含めない。
type PostgresTemplateRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresTemplateRepo はPostgresTemplateRepoを生成する。
func NewPostgresTemplateRepo(db *sql.DB) *PostgresTemplateRepo {
	return &PostgresTemplateRepo{db: db, now: time.Now}
}

func scanTemplate(t *model.Template) func(rowScanner) error {
	return func(row rowScanner) error {
		var status string
		if err := row.Scan(
			&t.ID, &t.Name, &t.Description, &t.TemplateContent, &t.Variables,
			&status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return err
		}
		t.Status = model.TemplateStatus(status)
		return nil
	}
}

func (r *PostgresTemplateRepo) findActive(ctx context.Context, q queryer, id, suffix string) (*model.Template, error) {
	b := psql.Select(templateColumns...).From("document_templates").
		Where(sq.Eq{"id": id, "status": string(model.TemplateStatusActive)})
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	t := &model.Template{}
	found, err := queryOne(ctx, q, b, scanTemplate(t))
	if err != nil || !found {
		return nil, err
	}
	return t, nil
}

// FindActiveByID は指定IDのアクティブなテンプレートを取得する。見つからない場合はnilを返す。
func (r *PostgresTemplateRepo) FindActiveByID(ctx context.Context, id string) (*model.Template, error) {
	if !validID(id) {
		return nil, nil
	}
	t, err := r.findActive(ctx, r.db, id, "")
	if err != nil {
		return nil, fmt.Errorf("failed to find template by ID: %w", err)
	}
	return t, nil
}

// ListActive はアクティブなテンプレートを新しい順で返す。
func (r *PostgresTemplateRepo) ListActive(ctx context.Context, createdBy string, page model.Page) ([]*model.Template, error) {
	where := sq.Eq{"status": string(model.TemplateStatusActive)}
	if createdBy != "" {
		where["created_by"] = createdBy
	}
	b := paginate(psql.Select(templateColumns...).From("document_templates").
		Where(where).
		OrderBy("created_at DESC", "id DESC"), page)

	templates := []*model.Template{}
	err := queryAll(ctx, r.db, b, func(row rowScanner) error {
		t := &model.Template{}
		if err := scanTemplate(t)(row); err != nil {
			return err
		}
		templates = append(templates, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Create はテンプレートを作成する。状態が未設定の場合はactiveで作成する。
func (r *PostgresTemplateRepo) Create(ctx context.Context, tmpl *model.Template) error {
	if tmpl.Status == "" {
		tmpl.Status = model.TemplateStatusActive
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = r.now()
	}
	tmpl.UpdatedAt = tmpl.CreatedAt

	b := psql.Insert("document_templates").Columns(templateColumns...).Values(
		tmpl.ID, tmpl.Name, tmpl.Description, tmpl.TemplateContent, tmpl.Variables,
		string(tmpl.Status), tmpl.CreatedBy, tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if _, err := exec(ctx, r.db, b); err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// UpdateFunc はアクティブな行をロックしてfnを適用し、状態を含めて更新する。
func (r *PostgresTemplateRepo) UpdateFunc(ctx context.Context, id string, fn func(*model.Template) error) (*model.Template, error) {
	if !validID(id) {
		return nil, nil
	}
	var updated *model.Template

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		t, err := r.findActive(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return fmt.Errorf("failed to lock template: %w", err)
		}
		if t == nil {
			return nil
		}
		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = r.now()

		b := psql.Update("document_templates").
			Set("name", t.Name).
			Set("description", t.Description).
			Set("template_content", t.TemplateContent).
			Set("variables", t.Variables).
			Set("status", string(t.Status)).
			Set("updated_at", t.UpdatedAt).
			Where(sq.Eq{"id": id})
		if _, err := exec(ctx, tx, b); err != nil {
			return fmt.Errorf("failed to update template: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

var _ TemplateRepository = (*PostgresTemplateRepo)(nil)
