package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Kousuke-irie/bicycle-market/logger"
	"google.golang.org/api/option"
)

var log = logger.New("storage")

// GCSStore Cloud Storage のバケットに保存する
type GCSStore struct {
	client       *storage.Client
	bucket       string
	signedURLTTL time.Duration
}

// NewGCSStore 認証ファイルが無ければデフォルトの認証にフォールバックする
func NewGCSStore(ctx context.Context, bucket, credentialsFile string, signedURLTTL time.Duration) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		log.Warn("storage credentials file is not set. Trying default client initialization...")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if signedURLTTL <= 0 {
		signedURLTTL = 15 * time.Minute
	}
	log.Info("GCS client initialized for bucket %s", bucket)
	return &GCSStore{client: client, bucket: bucket, signedURLTTL: signedURLTTL}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (*Object, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}

	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = opts.ContentType
	wc.Metadata = opts.Metadata
	if opts.Public {
		wc.ACL = []storage.ACLRule{{Entity: storage.AllUsers, Role: storage.RoleReader}}
	}

	n, err := io.Copy(wc, r)
	if err != nil {
		wc.Close()
		return nil, fmt.Errorf("failed to copy file to GCS: %w", err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	obj := &Object{Key: key, ContentType: opts.ContentType, Size: n}
	if opts.Public {
		obj.URL = fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
	}
	return obj, nil
}

// URL 非公開オブジェクト用の期限付き GET URL (V4 署名)
func (s *GCSStore) URL(_ context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	signed, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.signedURLTTL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return signed, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *GCSStore) Close() error { return s.client.Close() }
