package storage

import (
	"context"
	"fmt"

	"github.com/Kousuke-irie/bicycle-market/config"
)

// Open 設定に応じて GCS かローカルディスクを選ぶ。2 つ目の戻り値は終了時に呼ぶ
func Open(ctx context.Context, cfg config.StorageConfig) (Store, func() error, error) {
	switch cfg.Backend {
	case "gcs":
		gcs, err := NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsFile, cfg.SignedURLTTL)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs.Close, nil
	case "local", "":
		disk, err := NewDiskStore(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return disk, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
