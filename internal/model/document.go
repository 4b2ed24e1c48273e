package model

import "time"

// Document はアップロードまたは生成されたファイルのメタデータを表す。
// CreatedByは作成後に変更されない。
type Document struct {
	ID          string
	Title       string
	Description string
	FilePath    string // BlobStore上のキー
	FileName    string // ダウンロード時に提示する元ファイル名
	FileSize    int64
	FileType    string // 小文字の拡張子（例: "pdf"）
	IsPublic    bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnerID はドキュメントの所有ユーザーIDを返す。
func (d *Document) OwnerID() string { return d.CreatedBy }

// Public はドキュメントが公開設定かどうかを返す。
func (d *Document) Public() bool { return d.IsPublic }

// DocumentPatch はドキュメントの部分更新内容を表す。
// 所有者フィールドは持たないため、所有権は移転できない。
type DocumentPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

// Apply はパッチをドキュメントに適用する。
func (p DocumentPatch) Apply(d *Document) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.IsPublic != nil {
		d.IsPublic = *p.IsPublic
	}
}

// DocumentStats はユーザーのドキュメント統計。
type DocumentStats struct {
	TotalDocuments   int
	PublicDocuments  int
	PrivateDocuments int
	TotalSizeBytes   int64
}

// TotalSizeMB はTotalSizeBytesをMB単位（小数点以下2桁）で返す。
func (s DocumentStats) TotalSizeMB() float64 {
	mb := float64(s.TotalSizeBytes) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}
