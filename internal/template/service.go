// Package template は再利用可能な文書テンプレートの管理と、テンプレートからの文書生成を提供する。
package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/hitoshi/docman/internal/access"
	"github.com/hitoshi/docman/internal/document"
	"github.com/hitoshi/docman/internal/model"
	"github.com/hitoshi/docman/internal/renderer"
	"github.com/hitoshi/docman/internal/repository"
)

// 出力形式。
const (
	FormatTXT  = "txt"
	FormatHTML = "html"
)

// DocumentSaver は生成結果をドキュメントとして保存する。document.Serviceが実装する。
type DocumentSaver interface {
	SaveGenerated(ctx context.Context, ownerID string, f document.GeneratedFile) (*model.Document, error)
}

// Sanitizer はHTMLから危険な要素を取り除く。security.HTMLSanitizerが実装する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// CreateInput はテンプレート作成の入力。
type CreateInput struct {
	Name            string
	Description     string
	TemplateContent string
	Variables       string
}

// GenerateInput はテンプレートからの文書生成の入力。
type GenerateInput struct {
	Variables    map[string]any
	OutputFormat string
	Strict       bool
}

// Service はテンプレート管理のサービス層。
type Service struct {
	templates repository.TemplateRepository
	saver     DocumentSaver
	sanitizer Sanitizer
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(templates repository.TemplateRepository, saver DocumentSaver, sanitizer Sanitizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		templates: templates,
		saver:     saver,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Create はアクティブなテンプレートを作成する。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Template, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.NewInvalidRequestError("name is required")
	}
	if strings.TrimSpace(in.TemplateContent) == "" {
		return nil, model.NewInvalidRequestError("template_content is required")
	}

	tmpl := &model.Template{
		ID:              uuid.New().String(),
		Name:            name,
		Description:     in.Description,
		TemplateContent: in.TemplateContent,
		Variables:       in.Variables,
		Status:          model.TemplateStatusActive,
		CreatedBy:       ownerID,
	}
	if err := s.templates.Create(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("テンプレートの作成に失敗しました: %w", err)
	}
	return tmpl, nil
}

// List はアクティブなテンプレートを返す。mineがtrueなら要求者が作成したものに限る。
func (s *Service) List(ctx context.Context, requesterID string, mine bool, page model.Page) ([]*model.Template, error) {
	createdBy := ""
	if mine {
		createdBy = requesterID
	}
	tmpls, err := s.templates.ListActive(ctx, createdBy, page)
	if err != nil {
		return nil, fmt.Errorf("テンプレート一覧の取得に失敗しました: %w", err)
	}
	return tmpls, nil
}

// Get はアクティブなテンプレートを取得する。論理削除済みのものはNotFoundとなる。
func (s *Service) Get(ctx context.Context, requesterID, id string) (*model.Template, error) {
	tmpl, err := s.templates.FindActiveByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗しました: %w", err)
	}
	if tmpl == nil {
		return nil, model.NewTemplateNotFoundError(id)
	}
	if err := access.CheckRead(tmpl, requesterID); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Update は作成者のみがパッチを適用できる。
func (s *Service) Update(ctx context.Context, requesterID, id string, patch model.TemplatePatch) (*model.Template, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, model.NewInvalidRequestError("name must not be empty")
	}
	if patch.TemplateContent != nil && strings.TrimSpace(*patch.TemplateContent) == "" {
		return nil, model.NewInvalidRequestError("template_content must not be empty")
	}

	tmpl, err := s.templates.UpdateFunc(ctx, id, func(t *model.Template) error {
		if err := access.CheckWrite(t, requesterID); err != nil {
			return err
		}
		patch.Apply(t)
		return nil
	})
	if err != nil {
		return nil, wrapUnlessAPIError(err, "テンプレートの更新に失敗しました")
	}
	if tmpl == nil {
		return nil, model.NewTemplateNotFoundError(id)
	}
	return tmpl, nil
}

// Retire はテンプレートを論理削除する。行は残り、以後どの操作からも見えなくなる。
func (s *Service) Retire(ctx context.Context, requesterID, id string) error {
	tmpl, err := s.templates.UpdateFunc(ctx, id, func(t *model.Template) error {
		if err := access.CheckWrite(t, requesterID); err != nil {
			return err
		}
		t.Retire()
		return nil
	})
	if err != nil {
		return wrapUnlessAPIError(err, "テンプレートの削除に失敗しました")
	}
	if tmpl == nil {
		return model.NewTemplateNotFoundError(id)
	}

	s.logger.Info("template retired",
		slog.String("template_id", id),
		slog.String("user_id", requesterID),
	)
	return nil
}

// Validate はテンプレートに対して変数が揃っているかを判定する。
func (s *Service) Validate(ctx context.Context, requesterID, id string, vars map[string]any) (renderer.Validation, error) {
	tmpl, err := s.Get(ctx, requesterID, id)
	if err != nil {
		return renderer.Validation{}, err
	}
	return renderer.Validate(tmpl.TemplateContent, vars), nil
}

// Generate はテンプレートに変数を埋め込み、要求者の非公開ドキュメントとして保存する。
// strictがtrueで変数が不足している場合はMISSING_TEMPLATE_VARIABLESを返す。
func (s *Service) Generate(ctx context.Context, requesterID, id string, in GenerateInput) (*model.Document, error) {
	tmpl, err := s.Get(ctx, requesterID, id)
	if err != nil {
		return nil, err
	}

	if in.Strict {
		if v := renderer.Validate(tmpl.TemplateContent, in.Variables); !v.IsValid {
			return nil, model.NewMissingTemplateVariablesError(v.Missing)
		}
	}

	rendered := renderer.Render(tmpl.TemplateContent, in.Variables)

	format := NormalizeFormat(in.OutputFormat)
	content, contentType := rendered, "text/plain; charset=utf-8"
	if format == FormatHTML {
		content, contentType = wrapHTML(s.sanitizer.Sanitize(rendered)), "text/html; charset=utf-8"
	}

	doc, err := s.saver.SaveGenerated(ctx, requesterID, document.GeneratedFile{
		Title:       "Generated from " + tmpl.Name,
		Description: "Document generated from template: " + tmpl.Name,
		FileName:    fmt.Sprintf("%s_%s.%s", safeFileName(tmpl.Name), uuid.New().String(), format),
		FileType:    format,
		ContentType: contentType,
		Content:     []byte(content),
	})
	if err != nil {
		return nil, fmt.Errorf("生成文書の保存に失敗しました: %w", err)
	}

	s.logger.Info("document generated from template",
		slog.String("template_id", tmpl.ID),
		slog.String("document_id", doc.ID),
		slog.String("format", format),
	)
	return doc, nil
}

// NormalizeFormat は出力形式を小文字化し、html以外はtxtに丸める。
func NormalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), FormatHTML) {
		return FormatHTML
	}
	return FormatTXT
}

const htmlPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Generated Document</title>
</head>
<body>
<div style="white-space: pre-wrap;">%s</div>
</body>
</html>
`

func wrapHTML(body string) string {
	return fmt.Sprintf(htmlPage, body)
}

// safeFileName はファイル名に使えない文字を'_'に置き換える。
func safeFileName(name string) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
	if out == "" {
		return "template"
	}
	return out
}

func wrapUnlessAPIError(err error, msg string) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("%s: %w", msg, err)
}
