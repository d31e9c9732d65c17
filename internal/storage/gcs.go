package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

// GCSClient implements ObjectStorage on the Cloud Storage JSON API.
type GCSClient struct {
	srv    *gcs.Service
	bucket string
}

// NewGCSClient authenticates with a service account key. An empty
// credentialsJSON falls back to application default credentials.
func NewGCSClient(ctx context.Context, credentialsJSON, bucket string) (*GCSClient, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket must be provided")
	}

	var opts []option.ClientOption
	if credentialsJSON != "" {
		config, err := google.JWTConfigFromJSON([]byte(credentialsJSON), gcs.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(config.Client(ctx)))
	} else {
		client, err := google.DefaultClient(ctx, gcs.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("unable to find default credentials: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(client))
	}

	srv, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create storage client: %w", err)
	}
	return &GCSClient{srv: srv, bucket: bucket}, nil
}

func (c *GCSClient) PutObject(ctx context.Context, key string, data []byte) error {
	object := &gcs.Object{
		Name:        NormalizeKey(key),
		ContentType: contentTypeFor(key),
	}
	_, err := c.srv.Objects.Insert(c.bucket, object).
		Media(bytes.NewReader(data)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("gcs put %s failed: %w", key, err)
	}
	return nil
}

func (c *GCSClient) GetObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.srv.Objects.Get(c.bucket, NormalizeKey(key)).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("gcs get %s failed: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s failed: %w", key, err)
	}
	return data, nil
}

func (c *GCSClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	results := make([]ObjectInfo, 0)
	err := c.srv.Objects.List(c.bucket).
		Prefix(NormalizeKey(prefix)).
		Pages(ctx, func(page *gcs.Objects) error {
			for _, item := range page.Items {
				updated, _ := time.Parse(time.RFC3339, item.Updated)
				results = append(results, ObjectInfo{
					Key:          item.Name,
					Size:         int64(item.Size),
					ETag:         fmt.Sprintf("%d", item.Generation),
					LastModified: updated,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("gcs list failed: %w", err)
	}
	return results, nil
}

var _ ObjectStorage = (*GCSClient)(nil)
