// Package access はリソース単位の読み取り・書き込み権限の判定を提供する。
//
// 呼び出し側は必ず先にリソースを取得し、存在しない場合はNotFoundを返してから
// ここでの判定を行う。存在しないリソースに対してForbiddenを返してはならない。
package access

import "github.com/hitoshi/docman/internal/model"

// Resource は権限判定の対象となるリソース。
type Resource interface {
	OwnerID() string
	Public() bool
}

// CanRead はリソースが公開されているか、requesterIDが所有者の場合にtrueを返す。
func CanRead(r Resource, requesterID string) bool {
	return r.Public() || isOwner(r, requesterID)
}

// CanWrite はrequesterIDが所有者の場合にのみtrueを返す。
func CanWrite(r Resource, requesterID string) bool {
	return isOwner(r, requesterID)
}

// CheckRead は読み取り権限がなければForbiddenエラーを返す。
func CheckRead(r Resource, requesterID string) error {
	if !CanRead(r, requesterID) {
		return model.NewForbiddenError()
	}
	return nil
}

// CheckWrite は更新・削除権限がなければForbiddenエラーを返す。
func CheckWrite(r Resource, requesterID string) error {
	if !CanWrite(r, requesterID) {
		return model.NewForbiddenError()
	}
	return nil
}

func isOwner(r Resource, requesterID string) bool {
	return requesterID != "" && r.OwnerID() == requesterID
}
