package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const tempPrefix = ".upload-"

// LocalStorage keeps objects as files below a root directory. Writes go to
// a temporary file that is renamed into place, so readers never observe a
// partially written object.
type LocalStorage struct {
	root   string
	logger zerolog.Logger
}

func NewLocalStorage(root string, logger zerolog.Logger) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", abs, err)
	}
	return &LocalStorage{root: abs, logger: logger}, nil
}

func (l *LocalStorage) path(key string) (string, error) {
	key = NormalizeKey(key)
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	p := filepath.Join(l.root, filepath.FromSlash(key))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes storage root", key)
	}
	return p, nil
}

func (l *LocalStorage) PutObject(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed writing %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed moving %s into place: %w", key, err)
	}
	return nil
}

func (l *LocalStorage) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed reading %s: %w", key, err)
	}
	return data, nil
}

func (l *LocalStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	results := make([]ObjectInfo, 0)
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := l.stat(p)
		if err != nil {
			return err
		}
		if matchesPrefix(info.Key, prefix) {
			results = append(results, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local list failed: %w", err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

func (l *LocalStorage) stat(p string) (ObjectInfo, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return ObjectInfo{}, err
	}
	if fi.IsDir() {
		return ObjectInfo{}, fmt.Errorf("%s is a directory", p)
	}
	rel, err := filepath.Rel(l.root, p)
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{
		Key:          filepath.ToSlash(rel),
		Size:         fi.Size(),
		ETag:         fmt.Sprintf("%x-%x", fi.ModTime().UnixNano(), fi.Size()),
		LastModified: fi.ModTime(),
	}, nil
}

// Watch monitors the directory that holds prefix and emits an event each
// time a file below it is created or written. Subdirectories are not
// watched.
func (l *LocalStorage) Watch(ctx context.Context, prefix string) (<-chan ObjectEvent, error) {
	dir := l.root
	if p := NormalizeKey(prefix); p != "" {
		full, err := l.path(p)
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(prefix, "/") {
			dir = full
		} else {
			dir = filepath.Dir(full)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating watch directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	l.logger.Info().Str("dir", dir).Str("prefix", prefix).Msg("storage: watching for changes")

	out := make(chan ObjectEvent)
	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Renames into the directory surface as Create.
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if strings.HasPrefix(filepath.Base(event.Name), tempPrefix) {
					continue
				}

				info, err := l.stat(event.Name)
				if err != nil {
					// removed again before we got to it
					continue
				}
				if !matchesPrefix(info.Key, prefix) {
					continue
				}

				ev := ObjectEvent{
					Key:          info.Key,
					Size:         info.Size,
					ETag:         info.ETag,
					LastModified: info.LastModified,
					Source:       "local",
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error().Err(err).Msg("storage: watcher error")
			}
		}
	}()
	return out, nil
}

var (
	_ ObjectStorage = (*LocalStorage)(nil)
	_ Notifier      = (*LocalStorage)(nil)
)
