package model

import "time"

// DocumentRequest は文書生成リクエストの記録を表す。
// DocumentTypeは自由形式のタグ（例: "cv", "objective"）。
type DocumentRequest struct {
	ID               string
	UserID           string
	DocumentType     string
	InputData        map[string]any
	GeneratedContent string
	CreatedAt        time.Time
}

// OwnerID はリクエストの所有ユーザーIDを返す。
func (r *DocumentRequest) OwnerID() string { return r.UserID }

// Public は常にfalse。生成リクエストは所有者のみ参照できる。
func (r *DocumentRequest) Public() bool { return false }

// DocumentRequestPatch は生成リクエストの部分更新内容を表す。
type DocumentRequestPatch struct {
	DocumentType     *string         `json:"document_type"`
	InputData        *map[string]any `json:"input_data"`
	GeneratedContent *string         `json:"generated_content"`
}

// Apply はパッチを生成リクエストに適用する。
func (p DocumentRequestPatch) Apply(r *DocumentRequest) {
	if p.DocumentType != nil {
		r.DocumentType = *p.DocumentType
	}
	if p.InputData != nil {
		r.InputData = *p.InputData
	}
	if p.GeneratedContent != nil {
		r.GeneratedContent = *p.GeneratedContent
	}
}

// DocumentRequestStats はユーザーの生成リクエスト統計。
type DocumentRequestStats struct {
	TotalRequests  int
	RequestsByType map[string]int
}

// Page はオフセット方式のページング指定。
type Page struct {
	Skip  int
	Limit int
}

const (
	// DefaultPageLimit はlimit未指定時の件数。
	DefaultPageLimit = 100
	// MaxPageLimit はlimitの上限。
	MaxPageLimit = 100
)

// NewPage は範囲外の値を丸めたPageを返す。
func NewPage(skip, limit int) Page {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Skip: skip, Limit: limit}
}
