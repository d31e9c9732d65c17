package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinIOConfig encapsulates the connection info for MinIO / S3-compatible storage.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinIOClient implements ObjectStorage and Notifier on top of minio-go.
// Notifications use the server's bucket listen API.
type MinIOClient struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewMinIOClient connects to the endpoint and creates the bucket when it is
// missing.
func NewMinIOClient(ctx context.Context, cfg MinIOConfig, logger zerolog.Logger) (*MinIOClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket must be provided")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info().Str("bucket", cfg.Bucket).Msg("storage: created bucket")
	}

	return &MinIOClient{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (c *MinIOClient) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := c.client.PutObject(ctx, c.bucket, NormalizeKey(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeFor(key)})
	if err != nil {
		return fmt.Errorf("minio put %s failed: %w", key, err)
	}
	return nil
}

func (c *MinIOClient) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, NormalizeKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, c.translate(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, c.translate(key, err)
	}
	return data, nil
}

func (c *MinIOClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	results := make([]ObjectInfo, 0)
	for object := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    NormalizeKey(prefix),
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("minio list failed: %w", object.Err)
		}
		results = append(results, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			ETag:         object.ETag,
			LastModified: object.LastModified,
		})
	}
	return results, nil
}

// Watch listens for s3:ObjectCreated:* notifications under prefix.
func (c *MinIOClient) Watch(ctx context.Context, prefix string) (<-chan ObjectEvent, error) {
	infos := c.client.ListenBucketNotification(ctx, c.bucket, NormalizeKey(prefix), "", []string{
		"s3:ObjectCreated:*",
	})

	c.logger.Info().Str("bucket", c.bucket).Str("prefix", prefix).Msg("storage: listening for bucket notifications")

	out := make(chan ObjectEvent)
	go func() {
		defer close(out)
		for info := range infos {
			if info.Err != nil {
				c.logger.Error().Err(info.Err).Msg("storage: bucket notification error")
				continue
			}
			for _, record := range info.Records {
				key, err := url.QueryUnescape(record.S3.Object.Key)
				if err != nil {
					key = record.S3.Object.Key
				}
				ev := ObjectEvent{
					Key:    key,
					Size:   record.S3.Object.Size,
					ETag:   record.S3.Object.ETag,
					Source: "minio",
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *MinIOClient) translate(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound
	}
	return fmt.Errorf("minio get %s failed: %w", key, err)
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(key), ".csv"):
		return "text/csv"
	case strings.HasSuffix(strings.ToLower(key), ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

var (
	_ ObjectStorage = (*MinIOClient)(nil)
	_ Notifier      = (*MinIOClient)(nil)
)
