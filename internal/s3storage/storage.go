// Package s3storage wraps MinIO/S3 interactions: pushing staged audio into the
// destination bucket and reading transcript documents back.
package s3storage

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/ScribeDrop/internal/config"
	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
)

// maxTranscriptBytes bounds Download so a bad key cannot exhaust memory.
const maxTranscriptBytes = 32 << 20

// objectAPI is the subset of *minio.Client used here.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, key, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Storage is the remote store gateway.
type Storage struct {
	client objectAPI
	region string
	log    *log.Logger
}

// New creates a MinIO client from the S3 section of cfg. Empty keys fall back
// to the standard AWS environment variables.
func New(cfg config.S3Config, logger *log.Logger) (*Storage, error) {
	creds := credentials.NewEnvAWS()
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, region: cfg.Region, log: logging.OrDefault(logger)}, nil
}

// EnsureBucket makes sure bucket exists, creating it when missing.
func (s *Storage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	s.log.Info("created bucket", "bucket", bucket)
	return nil
}

// Upload copies the file at localPath to bucket/key. Uploading the same key
// twice overwrites the earlier object. The content type is sniffed from the
// file's magic bytes; minio guesses from the key when sniffing fails.
func (s *Storage) Upload(ctx context.Context, localPath, bucket, key string) error {
	var opts minio.PutObjectOptions
	if mt, err := mimetype.DetectFile(localPath); err == nil {
		opts.ContentType = mt.String()
	}
	info, err := s.client.FPutObject(ctx, bucket, key, localPath, opts)
	if err != nil {
		s.log.Error("upload failed", "path", localPath, "bucket", bucket, "key", key, "err", err)
		return fmt.Errorf("upload %s to %s/%s: %w", localPath, bucket, key, err)
	}
	s.log.Info("uploaded object", "bucket", bucket, "key", key, "size", info.Size, "content_type", opts.ContentType)
	return nil
}

// Download returns the bytes stored at bucket/key.
func (s *Storage) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(io.LimitReader(obj, maxTranscriptBytes))
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	return buf, nil
}
