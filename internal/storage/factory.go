package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hvalfangst/csvstats/internal/config"
)

// New builds the ObjectStorage selected by cfg.Backend. The container name
// doubles as the bucket for the bucket-based backends.
func New(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (ObjectStorage, error) {
	var (
		store ObjectStorage
		err   error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		store = NewMemoryStorage()
	case config.BackendLocal:
		store, err = asStorage(NewLocalStorage(cfg.LocalRoot, logger))
	case config.BackendMinIO:
		store, err = asStorage(NewMinIOClient(ctx, MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.Container,
			Region:    cfg.MinIO.Region,
			UseSSL:    cfg.MinIO.UseSSL,
		}, logger))
	case config.BackendS3:
		store, err = asStorage(NewSevallaClient(SevallaConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.Container,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		}))
	case config.BackendAzure:
		store, err = asStorage(NewAzureBlobClient(AzureBlobConfig{
			Account:   cfg.Azure.Account,
			AccessKey: cfg.Azure.AccessKey,
			Container: cfg.Container,
		}))
	case config.BackendGCS:
		store, err = asStorage(NewGCSClient(ctx, cfg.GCS.CredentialsJSON, cfg.Container))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// asStorage keeps a failed constructor's nil pointer out of the interface.
func asStorage[T ObjectStorage](s T, err error) (ObjectStorage, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewNotifier picks the event source for the trigger. redis is only used
// when cfg.Source is config.SourceRedis and may be nil otherwise.
func NewNotifier(store ObjectStorage, cfg config.TriggerConfig, redis *RedisNotifier, logger zerolog.Logger) (Notifier, error) {
	switch cfg.Source {
	case config.SourceNative:
		n, ok := store.(Notifier)
		if !ok {
			return nil, fmt.Errorf("%w: use TRIGGER_SOURCE=%s or %s", ErrNotificationsUnsupported, config.SourcePoll, config.SourceRedis)
		}
		return n, nil
	case config.SourcePoll:
		return NewPollingNotifier(store, cfg.PollInterval, logger), nil
	case config.SourceRedis:
		if redis == nil {
			return nil, fmt.Errorf("redis trigger source requires a redis connection")
		}
		return redis, nil
	default:
		return nil, fmt.Errorf("unknown trigger source %q", cfg.Source)
	}
}
