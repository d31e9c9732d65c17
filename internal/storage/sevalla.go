package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	cmstorage "github.com/chartmuseum/storage"
)

// SevallaConfig encapsulates the connection info for S3-compatible storage
// reached through chartmuseum's Amazon backend (Sevalla, AWS, Wasabi, ...).
type SevallaConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// AzureBlobConfig encapsulates the storage account that holds the container.
type AzureBlobConfig struct {
	Account   string
	AccessKey string
	Container string
}

// BackendClient implements ObjectStorage for any chartmuseum storage backend.
// chartmuseum backends have no change feed; pair them with a PollingNotifier
// or a RedisNotifier. Listings carry only LastModified: chartmuseum reports
// neither size nor ETag, so Size stays 0 and changes are detected by
// modification time alone.
type BackendClient struct {
	backend cmstorage.Backend
	name    string
}

// NewSevallaClient builds a BackendClient backed by chartmuseum's Amazon S3 backend.
func NewSevallaClient(cfg SevallaConfig) (*BackendClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be provided")
	}

	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if !cfg.UseSSL {
			scheme = "http"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, strings.TrimPrefix(cfg.Endpoint, "//"))
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	// The chartmuseum Amazon backend resolves credentials from the AWS environment.
	os.Setenv("AWS_ACCESS_KEY_ID", cfg.AccessKey)
	os.Setenv("AWS_SECRET_ACCESS_KEY", cfg.SecretKey)
	os.Setenv("AWS_REGION", region)
	os.Setenv("AWS_DEFAULT_REGION", region)

	backend := cmstorage.NewAmazonS3BackendWithOptions(
		cfg.Bucket,
		"", // no prefix
		region,
		endpoint,
		"",
		&cmstorage.AmazonS3Options{
			S3ForcePathStyle: awsBool(true),
		},
	)

	return &BackendClient{backend: backend, name: "s3"}, nil
}

// NewAzureBlobClient builds a BackendClient for an Azure Storage container.
func NewAzureBlobClient(cfg AzureBlobConfig) (*BackendClient, error) {
	if cfg.Account == "" || cfg.AccessKey == "" {
		return nil, fmt.Errorf("azure storage account and access key must be provided")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("azure container must be provided")
	}

	// The chartmuseum Microsoft backend reads the account from the environment.
	os.Setenv("AZURE_STORAGE_ACCOUNT", cfg.Account)
	os.Setenv("AZURE_STORAGE_ACCESS_KEY", cfg.AccessKey)

	backend := cmstorage.NewMicrosoftBlobBackend(cfg.Container, "")
	return &BackendClient{backend: backend, name: "azure"}, nil
}

// NewBackendClient wraps an already constructed chartmuseum backend.
func NewBackendClient(backend cmstorage.Backend, name string) *BackendClient {
	return &BackendClient{backend: backend, name: name}
}

func (c *BackendClient) PutObject(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.backend.PutObject(NormalizeKey(key), data); err != nil {
		return fmt.Errorf("%s put %s failed: %w", c.name, key, err)
	}
	return nil
}

func (c *BackendClient) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	object, err := c.backend.GetObject(NormalizeKey(key))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("%s get %s failed: %w", c.name, key, err)
	}
	return object.Content, nil
}

// ListObjects lists all objects for a given prefix.
func (c *BackendClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := NormalizeKey(prefix)
	dir := prefixDir(p)
	files, err := c.backend.ListObjects(dir)
	if err != nil {
		return nil, fmt.Errorf("%s list failed: %w", c.name, err)
	}
	results := make([]ObjectInfo, 0, len(files))
	for _, object := range files {
		// chartmuseum reports paths relative to the listed prefix
		key := dir + strings.TrimPrefix(object.Path, "/")
		if !matchesPrefix(key, p) {
			continue
		}
		results = append(results, ObjectInfo{
			Key:          key,
			LastModified: object.LastModified,
		})
	}
	return results, nil
}

// prefixDir returns the directory part of a key prefix including the
// trailing slash, or "" for top-level prefixes.
func prefixDir(prefix string) string {
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		return prefix[:i+1]
	}
	return ""
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "nosuchkey") ||
		strings.Contains(msg, "blobnotfound") ||
		strings.Contains(msg, "no such file")
}

var _ ObjectStorage = (*BackendClient)(nil)

func awsBool(v bool) *bool {
	return &v
}
