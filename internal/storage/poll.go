package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PollingNotifier turns any ObjectStorage into a Notifier by listing the
// watched prefix on an interval. Objects that exist when Watch starts are
// recorded as the baseline and do not produce events.
type PollingNotifier struct {
	store    ObjectStorage
	interval time.Duration
	logger   zerolog.Logger
	source   string
}

func NewPollingNotifier(store ObjectStorage, interval time.Duration, logger zerolog.Logger) *PollingNotifier {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollingNotifier{store: store, interval: interval, logger: logger, source: "poll"}
}

type objectVersion struct {
	etag         string
	size         int64
	lastModified time.Time
}

func versionOf(info ObjectInfo) objectVersion {
	return objectVersion{etag: info.ETag, size: info.Size, lastModified: info.LastModified}
}

func (p *PollingNotifier) Watch(ctx context.Context, prefix string) (<-chan ObjectEvent, error) {
	baseline, err := p.store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]objectVersion, len(baseline))
	for _, info := range baseline {
		seen[info.Key] = versionOf(info)
	}

	p.logger.Info().Str("prefix", prefix).Dur("interval", p.interval).Msg("storage: polling for changes")

	out := make(chan ObjectEvent)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			objects, err := p.store.ListObjects(ctx, prefix)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error().Err(err).Str("prefix", prefix).Msg("storage: poll failed")
				continue
			}

			for _, info := range objects {
				v := versionOf(info)
				if prev, ok := seen[info.Key]; ok && prev == v {
					continue
				}
				seen[info.Key] = v

				ev := ObjectEvent{
					Key:          info.Key,
					Size:         info.Size,
					ETag:         info.ETag,
					LastModified: info.LastModified,
					Source:       p.source,
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

var _ Notifier = (*PollingNotifier)(nil)
