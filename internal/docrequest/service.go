// Package docrequest は文書生成リクエストの記録と、外部生成サービスを使った本文生成を提供する。
package docrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/docman/internal/access"
	"github.com/hitoshi/docman/internal/model"
	"github.com/hitoshi/docman/internal/repository"
)

// DocumentTypeCV は履歴書生成の文書種別。
const DocumentTypeCV = "cv"

// ContentGenerator は入力から文書本文を生成する。generation.Serviceが実装する。
// 失敗時もエラーではなく説明文を返す。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, documentType string, input map[string]any) string
}

// CreateInput は生成リクエスト作成の入力。
type CreateInput struct {
	DocumentType     string
	InputData        map[string]any
	GeneratedContent string
}

// GenerateResult は生成結果。入力をそのまま含めて返す。
type GenerateResult struct {
	DocumentType     string         `json:"document_type"`
	InputData        map[string]any `json:"input_data"`
	GeneratedContent string         `json:"generated_content"`
}

// Service は生成リクエストのサービス層。
type Service struct {
	requests  repository.DocumentRequestRepository
	generator ContentGenerator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(requests repository.DocumentRequestRepository, generator ContentGenerator) *Service {
	return &Service{
		requests:  requests,
		generator: generator,
	}
}

// Create は生成リクエストを記録する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.DocumentRequest, error) {
	docType := strings.TrimSpace(in.DocumentType)
	if docType == "" {
		return nil, model.NewInvalidRequestError("document_type is required")
	}
	input := in.InputData
	if input == nil {
		input = map[string]any{}
	}

	req := &model.DocumentRequest{
		ID:               uuid.New().String(),
		UserID:           userID,
		DocumentType:     docType,
		InputData:        input,
		GeneratedContent: in.GeneratedContent,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("生成リクエストの作成に失敗しました: %w", err)
	}
	return req, nil
}

// List は要求者の生成リクエストを新しい順で返す。documentTypeが空でなければ絞り込む。
func (s *Service) List(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error) {
	reqs, err := s.requests.ListByUser(ctx, userID, strings.TrimSpace(documentType), page)
	if err != nil {
		return nil, fmt.Errorf("生成リクエスト一覧の取得に失敗しました: %w", err)
	}
	return reqs, nil
}

// Get は生成リクエストを取得する。所有者以外はForbidden。
func (s *Service) Get(ctx context.Context, requesterID, id string) (*model.DocumentRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("生成リクエストの取得に失敗しました: %w", err)
	}
	if req == nil {
		return nil, model.NewDocumentRequestNotFoundError(id)
	}
	if err := access.CheckRead(req, requesterID); err != nil {
		return nil, err
	}
	return req, nil
}

// Update は所有者のみがパッチを適用できる。
func (s *Service) Update(ctx context.Context, requesterID, id string, patch model.DocumentRequestPatch) (*model.DocumentRequest, error) {
	if patch.DocumentType != nil && strings.TrimSpace(*patch.DocumentType) == "" {
		return nil, model.NewInvalidRequestError("document_type must not be empty")
	}

	req, err := s.requests.UpdateFunc(ctx, id, func(r *model.DocumentRequest) error {
		if err := access.CheckWrite(r, requesterID); err != nil {
			return err
		}
		patch.Apply(r)
		if r.InputData == nil {
			r.InputData = map[string]any{}
		}
		return nil
	})
	if err != nil {
		return nil, wrapUnlessAPIError(err, "生成リクエストの更新に失敗しました")
	}
	if req == nil {
		return nil, model.NewDocumentRequestNotFoundError(id)
	}
	return req, nil
}

// Delete は所有者のみが削除できる。
func (s *Service) Delete(ctx context.Context, requesterID, id string) error {
	req, err := s.requests.DeleteFunc(ctx, id, func(r *model.DocumentRequest) error {
		return access.CheckWrite(r, requesterID)
	})
	if err != nil {
		return wrapUnlessAPIError(err, "生成リクエストの削除に失敗しました")
	}
	if req == nil {
		return model.NewDocumentRequestNotFoundError(id)
	}
	return nil
}

// Stats は要求者の生成リクエスト統計を返す。
func (s *Service) Stats(ctx context.Context, userID string) (*model.DocumentRequestStats, error) {
	stats, err := s.requests.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("生成リクエスト統計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// Generate は外部生成サービスで本文を生成する。結果は保存しない。
// 生成サービスの障害は本文中の説明文として返る。
func (s *Service) Generate(ctx context.Context, documentType string, input map[string]any) (*GenerateResult, error) {
	docType := strings.TrimSpace(documentType)
	if docType == "" {
		return nil, model.NewInvalidRequestError("document_type is required")
	}
	if input == nil {
		input = map[string]any{}
	}

	return &GenerateResult{
		DocumentType:     docType,
		InputData:        input,
		GeneratedContent: s.generator.GenerateContent(ctx, docType, input),
	}, nil
}

// GenerateCV は任意の入力マップから履歴書本文を生成する。
func (s *Service) GenerateCV(ctx context.Context, input map[string]any) string {
	if input == nil {
		input = map[string]any{}
	}
	return s.generator.GenerateContent(ctx, DocumentTypeCV, input)
}

func wrapUnlessAPIError(err error, msg string) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("%s: %w", msg, err)
}
