package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey キーに .. や絶対パスが含まれる
var ErrInvalidKey = errors.New("storage: invalid object key")

// PutOptions アップロード時の属性
type PutOptions struct {
	ContentType string
	Public      bool // 商品画像など誰でも見てよいもの
	Metadata    map[string]string
}

// Object 保存したオブジェクトの情報
type Object struct {
	Key         string
	URL         string // 公開オブジェクトのみ。非公開は Store.URL で都度発行する
	ContentType string
	Size        int64
}

// Store ファイル保存先の抽象
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (*Object, error)
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ProofKey 振込明細のキー: payment-proofs/<注文番号>/<uuid><拡張子>
func ProofKey(orderNumber, fileName string) string {
	return fmt.Sprintf("payment-proofs/%s/%s%s", orderNumber, uuid.New().String(), strings.ToLower(filepath.Ext(fileName)))
}

// ImageKey 出品画像のキー: bicycles/<ユーザーID>/<uuid><拡張子>
func ImageKey(userID uint64, fileName string) string {
	return fmt.Sprintf("bicycles/%d/%s%s", userID, uuid.New().String(), strings.ToLower(filepath.Ext(fileName)))
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	clean := path.Clean(key)
	return clean == key && !strings.HasPrefix(clean, "../") && clean != ".."
}
