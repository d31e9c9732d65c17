package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

type memoryObject struct {
	data         []byte
	etag         string
	lastModified time.Time
}

type subscriber struct {
	prefix string
	ch     chan ObjectEvent
	done   <-chan struct{}
}

// MemoryStorage is a thread-safe in-process ObjectStorage with native
// notifications. It backs tests and single-process development runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
	subs    map[*subscriber]struct{}
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string]*memoryObject),
		subs:    make(map[*subscriber]struct{}),
		now:     time.Now,
	}
}

// PutObject stores a copy of data and notifies watchers of key.
func (m *MemoryStorage) PutObject(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = NormalizeKey(key)

	buf := make([]byte, len(data))
	copy(buf, data)
	sum := md5.Sum(buf)
	obj := &memoryObject{
		data:         buf,
		etag:         hex.EncodeToString(sum[:]),
		lastModified: m.now(),
	}

	m.mu.Lock()
	m.objects[key] = obj
	targets := make([]*subscriber, 0, len(m.subs))
	for s := range m.subs {
		if matchesPrefix(key, s.prefix) {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()

	event := ObjectEvent{
		Key:          key,
		Size:         int64(len(buf)),
		ETag:         obj.etag,
		LastModified: obj.lastModified,
		Source:       "memory",
	}
	for _, s := range targets {
		select {
		case s.ch <- event:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// GetObject returns a copy of the stored bytes.
func (m *MemoryStorage) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[NormalizeKey(key)]
	if !ok {
		return nil, ErrObjectNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// ListObjects returns objects under prefix sorted by key.
func (m *MemoryStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]ObjectInfo, 0)
	for key, obj := range m.objects {
		if !matchesPrefix(key, prefix) {
			continue
		}
		results = append(results, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ETag:         obj.etag,
			LastModified: obj.lastModified,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// Watch subscribes to writes under prefix.
func (m *MemoryStorage) Watch(ctx context.Context, prefix string) (<-chan ObjectEvent, error) {
	s := &subscriber{
		prefix: prefix,
		ch:     make(chan ObjectEvent, 16),
		done:   ctx.Done(),
	}

	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	out := make(chan ObjectEvent)
	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.subs, s)
			m.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.ch:
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

var (
	_ ObjectStorage = (*MemoryStorage)(nil)
	_ Notifier      = (*MemoryStorage)(nil)
)
