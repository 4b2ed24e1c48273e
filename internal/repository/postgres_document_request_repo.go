package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/docman/internal/model"
)

var documentRequestColumns = []string{
	"id", "user_id", "document_type", "input_data", "generated_content", "created_at",
}

// PostgresDocumentRequestRepo はPostgreSQLを使用した生成リクエストのリポジトリ。
// input_dataはJSONBとして保存する。
type PostgresDocumentRequestRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresDocumentRequestRepo はPostgresDocumentRequestRepoを生成する。
func NewPostgresDocumentRequestRepo(db *sql.DB) *PostgresDocumentRequestRepo {
	return &PostgresDocumentRequestRepo{db: db, now: time.Now}
}

func scanDocumentRequest(dr *model.DocumentRequest) func(rowScanner) error {
	return func(row rowScanner) error {
		var input []byte
		if err := row.Scan(&dr.ID, &dr.UserID, &dr.DocumentType, &input, &dr.GeneratedContent, &dr.CreatedAt); err != nil {
			return err
		}
		data, err := decodeInputData(input)
		if err != nil {
			return err
		}
		dr.InputData = data
		return nil
	}
}

// encodeInputData はnilマップを空オブジェクトとして保存する。
// lib/pqは[]byteをbyteaとして送るため、JSONBには文字列で渡す。
func encodeInputData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode input data: %w", err)
	}
	return string(b), nil
}

func decodeInputData(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode input data: %w", err)
	}
	return data, nil
}

func (r *PostgresDocumentRequestRepo) findOne(ctx context.Context, q queryer, id, suffix string) (*model.DocumentRequest, error) {
	b := psql.Select(documentRequestColumns...).From("document_requests").Where(sq.Eq{"id": id})
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	dr := &model.DocumentRequest{}
	found, err := queryOne(ctx, q, b, scanDocumentRequest(dr))
	if err != nil || !found {
		return nil, err
	}
	return dr, nil
}

// FindByID は指定IDの生成リクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRequestRepo) FindByID(ctx context.Context, id string) (*model.DocumentRequest, error) {
	if !validID(id) {
		return nil, nil
	}
	dr, err := r.findOne(ctx, r.db, id, "")
	if err != nil {
		return nil, fmt.Errorf("failed to find document request by ID: %w", err)
	}
	return dr, nil
}

// ListByUser は指定ユーザーの生成リクエストを新しい順で返す。
func (r *PostgresDocumentRequestRepo) ListByUser(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error) {
	where := sq.Eq{"user_id": userID}
	if documentType != "" {
		where["document_type"] = documentType
	}
	b := paginate(psql.Select(documentRequestColumns...).From("document_requests").
		Where(where).
		OrderBy("created_at DESC", "id DESC"), page)

	requests := []*model.DocumentRequest{}
	err := queryAll(ctx, r.db, b, func(row rowScanner) error {
		dr := &model.DocumentRequest{}
		if err := scanDocumentRequest(dr)(row); err != nil {
			return err
		}
		requests = append(requests, dr)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list document requests: %w", err)
	}
	return requests, nil
}

// Stats は指定ユーザーの生成リクエスト統計を返す。
func (r *PostgresDocumentRequestRepo) Stats(ctx context.Context, userID string) (*model.DocumentRequestStats, error) {
	b := psql.Select("document_type", "COUNT(*)").From("document_requests").
		Where(sq.Eq{"user_id": userID}).
		GroupBy("document_type")

	stats := &model.DocumentRequestStats{RequestsByType: map[string]int{}}
	err := queryAll(ctx, r.db, b, func(row rowScanner) error {
		var docType string
		var count int
		if err := row.Scan(&docType, &count); err != nil {
			return err
		}
		stats.RequestsByType[docType] = count
		stats.TotalRequests += count
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document request stats: %w", err)
	}
	return stats, nil
}

// Create は生成リクエストを作成する。
func (r *PostgresDocumentRequestRepo) Create(ctx context.Context, req *model.DocumentRequest) error {
	input, err := encodeInputData(req.InputData)
	if err != nil {
		return err
	}
	if req.InputData == nil {
		req.InputData = map[string]any{}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.now()
	}

	b := psql.Insert("document_requests").Columns(documentRequestColumns...).
		Values(req.ID, req.UserID, req.DocumentType, input, req.GeneratedContent, req.CreatedAt)
	if _, err := exec(ctx, r.db, b); err != nil {
		return fmt.Errorf("failed to insert document request: %w", err)
	}
	return nil
}

// UpdateFunc は行ロックを取得したうえでfnを適用し更新する。
func (r *PostgresDocumentRequestRepo) UpdateFunc(ctx context.Context, id string, fn func(*model.DocumentRequest) error) (*model.DocumentRequest, error) {
	if !validID(id) {
		return nil, nil
	}
	var updated *model.DocumentRequest

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		dr, err := r.findOne(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return fmt.Errorf("failed to lock document request: %w", err)
		}
		if dr == nil {
			return nil
		}
		if err := fn(dr); err != nil {
			return err
		}

		input, err := encodeInputData(dr.InputData)
		if err != nil {
			return err
		}
		b := psql.Update("document_requests").
			Set("document_type", dr.DocumentType).
			Set("input_data", input).
			Set("generated_content", dr.GeneratedContent).
			Where(sq.Eq{"id": id})
		if _, err := exec(ctx, tx, b); err != nil {
			return fmt.Errorf("failed to update document request: %w", err)
		}
		updated = dr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteFunc は行ロックを取得したうえでfnを呼び、エラーがなければ削除する。
func (r *PostgresDocumentRequestRepo) DeleteFunc(ctx context.Context, id string, fn func(*model.DocumentRequest) error) (*model.DocumentRequest, error) {
	if !validID(id) {
		return nil, nil
	}
	var deleted *model.DocumentRequest

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		dr, err := r.findOne(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return fmt.Errorf("failed to lock document request: %w", err)
		}
		if dr == nil {
			return nil
		}
		if err := fn(dr); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, psql.Delete("document_requests").Where(sq.Eq{"id": id})); err != nil {
			return fmt.Errorf("failed to delete document request: %w", err)
		}
		deleted = dr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

var _ DocumentRequestRepository = (*PostgresDocumentRequestRepo)(nil)
