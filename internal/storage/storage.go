package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrObjectNotFound is returned by GetObject when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNotificationsUnsupported is returned when a backend has no native
	// change notifications.
	ErrNotificationsUnsupported = errors.New("backend does not support change notifications")
)

// ObjectInfo represents metadata for a remote file/object. Size and ETag are
// zero when the backend does not report them.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectEvent announces that an object was created or overwritten.
type ObjectEvent struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
	Source       string    `json:"source"`
}

// ObjectStorage captures the whole-object operations the pipeline needs.
// Keys are relative to the configured container or bucket. Writes replace
// the object entirely.
type ObjectStorage interface {
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Notifier delivers object-created events for keys under prefix until ctx is
// cancelled, after which the channel is closed. Delivery is at least once.
type Notifier interface {
	Watch(ctx context.Context, prefix string) (<-chan ObjectEvent, error)
}

// NormalizeKey strips leading slashes and cleans backslashes so keys compare
// equal across backends.
func NormalizeKey(key string) string {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	return strings.TrimLeft(key, "/")
}

func matchesPrefix(key, prefix string) bool {
	return strings.HasPrefix(NormalizeKey(key), NormalizeKey(prefix))
}
