package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"slipstream/internal/config"
	"slipstream/internal/logging"
	"slipstream/internal/services"
)

// MinIO is the production Backend, talking to any S3-compatible endpoint.
type MinIO struct {
	client    *minio.Client
	bucket    string
	endpoint  string
	useSSL    bool
	publicURL string
	logger    *slog.Logger
}

// NewMinIO constructs a MinIO backend from storage configuration.
func NewMinIO(cfg config.Storage, logger *slog.Logger) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "connect", "storage.endpoint is not configured", nil)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "connect", "create client", err)
	}
	return &MinIO{
		client:    client,
		bucket:    cfg.Bucket,
		endpoint:  cfg.Endpoint,
		useSSL:    cfg.UseSSL,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		logger:    logging.NewComponentLogger(logger, "objectstore"),
	}, nil
}

// EnsureBucket creates the bucket when missing and applies a public-read
// policy. Policy failures are logged, not fatal; some deployments manage
// policies externally.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return services.Wrap(services.ErrStorage, "storage", "ensure bucket", m.bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return services.Wrap(services.ErrStorage, "storage", "create bucket", m.bucket, err)
		}
		m.logger.Info("bucket created", logging.String("bucket", m.bucket))
	}

	policy := fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"AWS": ["*"]},
      "Action": ["s3:GetObject"],
      "Resource": ["arn:aws:s3:::%s/*"]
    }
  ]
}`, m.bucket)
	if err := m.client.SetBucketPolicy(ctx, m.bucket, policy); err != nil {
		m.logger.Warn("could not set bucket policy", logging.String("bucket", m.bucket), logging.Error(err))
	}
	return nil
}

// Put uploads a local file under the given object name.
func (m *MinIO) Put(ctx context.Context, localPath, objectName, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeFor(objectName)
	}
	_, err := m.client.FPutObject(ctx, m.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, "storage", "upload", objectName, err)
	}
	return nil
}

// RemovePrefix deletes every object below prefix. Individual removal errors
// are collected into one failure after the listing drains.
func (m *MinIO) RemovePrefix(ctx context.Context, prefix string) error {
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for info := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if info.Err != nil {
				m.logger.Warn("list objects", logging.String("prefix", prefix), logging.Error(info.Err))
				continue
			}
			objects <- info
		}
	}()

	var failures int
	for result := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			failures++
			m.logger.Warn("remove object", logging.String("object", result.ObjectName), logging.Error(result.Err))
		}
	}
	if failures > 0 {
		return services.Wrap(services.ErrStorage, "storage", "remove prefix",
			fmt.Sprintf("%s: %d objects not removed", prefix, failures), nil)
	}
	return nil
}

// PublicURL derives the playback URL for an object. A configured public URL
// wins over the raw endpoint so deployments can front the store with a CDN.
func (m *MinIO) PublicURL(objectName string) string {
	objectName = strings.TrimLeft(objectName, "/")
	if m.publicURL != "" {
		return m.publicURL + "/" + m.bucket + "/" + objectName
	}
	scheme := "http"
	if m.useSSL {
		scheme = "https"
	}
	return scheme + "://" + m.endpoint + "/" + m.bucket + "/" + objectName
}

var _ Backend = (*MinIO)(nil)
