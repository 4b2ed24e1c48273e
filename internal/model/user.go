// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュであり、平文パスワードは保持しない。
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OwnerID はアクセス制御におけるリソース所有者を返す。
// ユーザーリソースの所有者はユーザー自身。
func (u *User) OwnerID() string { return u.ID }

// Public はユーザーリソースが公開されているかを返す。常にfalse。
func (u *User) Public() bool { return false }

// NormalizeEmail はメールアドレスを前後空白除去・小文字化した形に正規化する。
// 書き込み時と検索時の両方で必ずこの関数を通す。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserPatch はユーザーの部分更新内容を表す。
// nilのフィールドは変更しない。
type UserPatch struct {
	Email    *string
	FullName *string
	// Password は平文。サービス層でハッシュ化してからApplyする。
	Password *string
}

// Apply はパッチをユーザーに適用する。
// passwordHashはPasswordが指定された場合にサービス層で計算済みのハッシュ。
func (p UserPatch) Apply(u *User, passwordHash string) {
	if p.Email != nil {
		u.Email = NormalizeEmail(*p.Email)
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Password != nil && passwordHash != "" {
		u.PasswordHash = passwordHash
	}
}
