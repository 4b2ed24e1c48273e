// Package document はドキュメントのアップロード・参照・更新・削除のドメインロジックを提供する。
//
// メタデータはDocumentRepository、ファイル本体はBlobStoreに保存する。
// 取得系・更新系の操作は必ず「存在確認 → 権限判定」の順で行う。
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/docman/internal/access"
	"github.com/hitoshi/docman/internal/model"
	"github.com/hitoshi/docman/internal/repository"
	"github.com/hitoshi/docman/internal/storage"
)

// UploadConfig はアップロード時の検証設定。
type UploadConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string // 小文字、ドットなし
}

// UploadRecorder はアップロード件数とサイズを記録する。metrics.Collectorが実装する。
type UploadRecorder interface {
	RecordUpload(sizeBytes int64)
}

// UploadInput はアップロード要求の内容。
type UploadInput struct {
	Title       string
	Description string
	IsPublic    bool
	FileName    string
	Size        int64 // 不明な場合は-1
	ContentType string
	Content     io.Reader
}

// GeneratedFile はサーバー側で生成したファイルの内容。
// アップロードと異なり拡張子・サイズの検証は行わない。
type GeneratedFile struct {
	Title       string
	Description string
	FileName    string
	FileType    string
	ContentType string
	Content     []byte
}

// Service はドキュメント管理のサービス層。
type Service struct {
	docs    repository.DocumentRepository
	blobs   storage.BlobStore
	cfg     UploadConfig
	metrics UploadRecorder
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。recはnilでもよい。
func NewService(
	docs repository.DocumentRepository,
	blobs storage.BlobStore,
	cfg UploadConfig,
	rec UploadRecorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make([]string, 0, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed = append(allowed, ext)
		}
	}
	cfg.AllowedExtensions = allowed

	return &Service{
		docs:    docs,
		blobs:   blobs,
		cfg:     cfg,
		metrics: rec,
		logger:  logger,
	}
}

// Extension はファイル名の最後のドット以降を小文字で返す。ドットがなければ空文字列。
func Extension(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// Upload はファイルを検証して保存し、ドキュメントを作成する。
// サイズ超過はFILE_TOO_LARGE、許可されていない拡張子はFILE_TYPE_NOT_ALLOWEDを返す。
func (s *Service) Upload(ctx context.Context, ownerID string, in UploadInput) (*model.Document, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.NewInvalidRequestError("title is required")
	}
	if in.Content == nil {
		return nil, model.NewInvalidRequestError("file is required")
	}
	if s.cfg.MaxFileSize > 0 && in.Size > s.cfg.MaxFileSize {
		return nil, model.NewFileTooLargeError(s.cfg.MaxFileSize)
	}

	ext := Extension(in.FileName)
	if !slices.Contains(s.cfg.AllowedExtensions, ext) {
		return nil, model.NewFileTypeNotAllowedError(s.cfg.AllowedExtensions)
	}

	key := uuid.New().String() + "." + ext

	// 申告サイズが不明・不正確な場合に備え、上限+1バイトまでしか読まない
	content := in.Content
	if s.cfg.MaxFileSize > 0 {
		content = io.LimitReader(in.Content, s.cfg.MaxFileSize+1)
	}
	written, err := s.blobs.Put(ctx, key, content, in.Size, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("ファイルの保存に失敗しました: %w", err)
	}
	if s.cfg.MaxFileSize > 0 && written > s.cfg.MaxFileSize {
		s.removeBlob(ctx, key)
		return nil, model.NewFileTooLargeError(s.cfg.MaxFileSize)
	}

	fileName := path.Base(strings.ReplaceAll(in.FileName, `\`, "/"))
	if fileName == "" || fileName == "." || fileName == "/" {
		fileName = "unknown"
	}

	doc := &model.Document{
		ID:          uuid.New().String(),
		Title:       title,
		Description: in.Description,
		FilePath:    key,
		FileName:    fileName,
		FileSize:    written,
		FileType:    ext,
		IsPublic:    in.IsPublic,
		CreatedBy:   ownerID,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.removeBlob(ctx, key)
		return nil, fmt.Errorf("ドキュメントの作成に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordUpload(written)
	}
	s.logger.Info("document uploaded",
		slog.String("document_id", doc.ID),
		slog.String("owner_id", ownerID),
		slog.Int64("size_bytes", written),
	)
	return doc, nil
}

// SaveGenerated はサーバー側で生成した内容を非公開ドキュメントとして保存する。
func (s *Service) SaveGenerated(ctx context.Context, ownerID string, f GeneratedFile) (*model.Document, error) {
	key := uuid.New().String() + "." + f.FileType

	written, err := s.blobs.Put(ctx, key, strings.NewReader(string(f.Content)), int64(len(f.Content)), f.ContentType)
	if err != nil {
		return nil, fmt.Errorf("生成ファイルの保存に失敗しました: %w", err)
	}

	doc := &model.Document{
		ID:          uuid.New().String(),
		Title:       f.Title,
		Description: f.Description,
		FilePath:    key,
		FileName:    f.FileName,
		FileSize:    written,
		FileType:    f.FileType,
		IsPublic:    false,
		CreatedBy:   ownerID,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.removeBlob(ctx, key)
		return nil, fmt.Errorf("ドキュメントの作成に失敗しました: %w", err)
	}
	return doc, nil
}

// List はpublicOnlyがtrueなら公開ドキュメント、falseなら要求者のドキュメントを返す。
func (s *Service) List(ctx context.Context, requesterID string, publicOnly bool, page model.Page) ([]*model.Document, error) {
	var (
		docs []*model.Document
		err  error
	)
	if publicOnly {
		docs, err = s.docs.ListPublic(ctx, page)
	} else {
		docs, err = s.docs.ListByOwner(ctx, requesterID, page)
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗しました: %w", err)
	}
	return docs, nil
}

// Search は要求者のドキュメントをタイトル・説明で部分一致検索する。
func (s *Service) Search(ctx context.Context, requesterID, query string, page model.Page) ([]*model.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewInvalidRequestError("search query is required")
	}
	docs, err := s.docs.Search(ctx, requesterID, query, page)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの検索に失敗しました: %w", err)
	}
	return docs, nil
}

// Stats は要求者のドキュメント統計を返す。
func (s *Service) Stats(ctx context.Context, requesterID string) (*model.DocumentStats, error) {
	stats, err := s.docs.Stats(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント統計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// Get はドキュメントを取得する。存在しなければNotFound、読めなければForbidden。
func (s *Service) Get(ctx context.Context, requesterID, id string) (*model.Document, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗しました: %w", err)
	}
	if doc == nil {
		return nil, model.NewDocumentNotFoundError(id)
	}
	if err := access.CheckRead(doc, requesterID); err != nil {
		return nil, err
	}
	return doc, nil
}

// Open はGetと同じ判定の後、ファイル本体を開く。呼び出し側でCloseすること。
func (s *Service) Open(ctx context.Context, requesterID, id string) (*model.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, requesterID, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Open(ctx, doc.FilePath)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("document blob missing",
			slog.String("document_id", doc.ID),
			slog.String("file_path", doc.FilePath),
		)
		return nil, nil, model.NewFileNotFoundError()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("ファイルの読み出しに失敗しました: %w", err)
	}
	return doc, rc, nil
}

// Update は所有者のみがパッチを適用できる。判定と更新は同一トランザクションで行う。
func (s *Service) Update(ctx context.Context, requesterID, id string, patch model.DocumentPatch) (*model.Document, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, model.NewInvalidRequestError("title must not be empty")
	}

	doc, err := s.docs.UpdateFunc(ctx, id, func(d *model.Document) error {
		if err := access.CheckWrite(d, requesterID); err != nil {
			return err
		}
		patch.Apply(d)
		return nil
	})
	if err != nil {
		return nil, wrapUnlessAPIError(err, "ドキュメントの更新に失敗しました")
	}
	if doc == nil {
		return nil, model.NewDocumentNotFoundError(id)
	}
	return doc, nil
}

// Delete は所有者のみが削除できる。行を削除した後にファイル本体を削除する。
// ファイル削除の失敗はログに記録するのみで、呼び出し側には成功を返す。
func (s *Service) Delete(ctx context.Context, requesterID, id string) error {
	doc, err := s.docs.DeleteFunc(ctx, id, func(d *model.Document) error {
		return access.CheckWrite(d, requesterID)
	})
	if err != nil {
		return wrapUnlessAPIError(err, "ドキュメントの削除に失敗しました")
	}
	if doc == nil {
		return model.NewDocumentNotFoundError(id)
	}

	s.removeBlob(ctx, doc.FilePath)
	return nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Error("failed to delete blob",
			slog.String("file_path", key),
			slog.String("error", err.Error()),
		)
	}
}

// wrapUnlessAPIError はコールバックが返したAPIErrorをそのまま返し、それ以外をラップする。
func wrapUnlessAPIError(err error, msg string) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("%s: %w", msg, err)
}
