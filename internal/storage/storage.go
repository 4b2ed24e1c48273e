// Package storage はアップロードされたファイル本体（Blob）の保存先を抽象化する。
// メタデータはリポジトリ層、本体はここで扱い、両者はキーで結び付けられる。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound は指定キーのBlobが存在しないことを表す。
var ErrNotFound = errors.New("blob not found")

// BlobStore はBlobの保存・取得・削除のインターフェース。
type BlobStore interface {
	// Put はrの内容をkeyで保存し、書き込んだバイト数を返す。
	// sizeが不明な場合は-1を渡す。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error)

	// Open はkeyのBlobを読み出す。存在しない場合はErrNotFoundを返す。
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete はkeyのBlobを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// ValidateKey はキーがフラットなファイル名であることを検証する。
// ディレクトリ区切りや親ディレクトリ参照を含むキーは保存先の外を指しうるため拒否する。
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("empty blob key")
	case key == "." || key == "..":
		return fmt.Errorf("invalid blob key: %q", key)
	case strings.ContainsAny(key, `/\`):
		return fmt.Errorf("blob key must not contain path separators: %q", key)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("blob key must not contain NUL")
	}
	return nil
}
