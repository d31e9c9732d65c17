package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hvalfangst/csvstats/internal/config"
)

// Publisher announces object events to other processes.
type Publisher interface {
	Publish(ctx context.Context, event ObjectEvent) error
}

// RedisNotifier carries object events over a Redis pub/sub channel. It is
// both the Publisher used by writers and the Notifier used by the trigger.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func NewRedisNotifier(client *redis.Client, channel string, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, event ObjectEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode object event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Watch(ctx context.Context, prefix string) (<-chan ObjectEvent, error) {
	sub := n.client.Subscribe(ctx, n.channel)
	// Wait for the subscription to be confirmed so no event published after
	// Watch returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}

	n.logger.Info().Str("channel", n.channel).Str("prefix", prefix).Msg("storage: subscribed to object events")

	out := make(chan ObjectEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev ObjectEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.logger.Error().Err(err).Str("channel", n.channel).Msg("storage: dropping malformed object event")
					continue
				}
				if !matchesPrefix(ev.Key, prefix) {
					continue
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

// publishingStorage announces every successful write.
type publishingStorage struct {
	ObjectStorage
	publisher Publisher
	source    string
	now       func() time.Time
}

// WithPublisher wraps store so that each successful PutObject is followed by
// an event on publisher. A publish failure is reported as a write failure:
// the object exists but no trigger will fire for it.
func WithPublisher(store ObjectStorage, publisher Publisher, source string) ObjectStorage {
	return &publishingStorage{ObjectStorage: store, publisher: publisher, source: source, now: time.Now}
}

func (p *publishingStorage) PutObject(ctx context.Context, key string, data []byte) error {
	if err := p.ObjectStorage.PutObject(ctx, key, data); err != nil {
		return err
	}
	event := ObjectEvent{
		Key:          NormalizeKey(key),
		Size:         int64(len(data)),
		LastModified: p.now(),
		Source:       p.source,
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("object %s stored but event not published: %w", key, err)
	}
	return nil
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

var (
	_ Publisher = (*RedisNotifier)(nil)
	_ Notifier  = (*RedisNotifier)(nil)
)
