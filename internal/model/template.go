package model

import "time"

// TemplateStatus はテンプレートのライフサイクル状態を表す。
type TemplateStatus string

const (
	// TemplateStatusActive は一覧・参照・生成の対象となる状態。
	TemplateStatusActive TemplateStatus = "active"
	// TemplateStatusRetired は論理削除済みの終端状態。行は残るが、どの操作の対象にもならない。
	TemplateStatusRetired TemplateStatus = "retired"
)

// Template は {{name}} プレースホルダを含む再利用可能な文書テンプレート。
type Template struct {
	ID              string
	Name            string
	Description     string
	TemplateContent string
	Variables       string // 変数スキーマのヒント（任意のシリアライズ文字列）
	Status          TemplateStatus
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OwnerID はテンプレートの作成者IDを返す。
func (t *Template) OwnerID() string { return t.CreatedBy }

// Public はテンプレートが他ユーザーから参照可能かを返す。
// アクティブなテンプレートは共有カタログとして全認証ユーザーが参照できる。
func (t *Template) Public() bool { return t.Status == TemplateStatusActive }

// IsActive はテンプレートがアクティブ状態かを返す。
func (t *Template) IsActive() bool { return t.Status == TemplateStatusActive }

// Retire はテンプレートを終端状態に遷移させる。
func (t *Template) Retire() { t.Status = TemplateStatusRetired }

// TemplatePatch はテンプレートの部分更新内容を表す。
// ライフサイクル状態はパッチでは変更できない（論理削除は削除操作のみ）。
type TemplatePatch struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	TemplateContent *string `json:"template_content"`
	Variables       *string `json:"variables"`
}

// Apply はパッチをテンプレートに適用する。
func (p TemplatePatch) Apply(t *Template) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.TemplateContent != nil {
		t.TemplateContent = *p.TemplateContent
	}
	if p.Variables != nil {
		t.Variables = *p.Variables
	}
}
