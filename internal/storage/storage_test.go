package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	cmstorage "github.com/chartmuseum/storage"
	"github.com/rs/zerolog"

	"github.com/hvalfangst/csvstats/internal/config"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"in/input.csv", "in/input.csv"},
		{"/in/input.csv", "in/input.csv"},
		{"//in/input.csv", "in/input.csv"},
		{`in\input.csv`, "in/input.csv"},
		{"  out/statistics.json ", "out/statistics.json"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// exerciseStore runs the behaviour every ObjectStorage must share.
func exerciseStore(t *testing.T, store ObjectStorage) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.GetObject(ctx, "in/missing.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("GetObject(missing) error = %v, want ErrObjectNotFound", err)
	}

	first := []byte("Gender,State,Experience,Income\nMale,CA,5,50000\n")
	if err := store.PutObject(ctx, "in/input.csv", first); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	got, err := store.GetObject(ctx, "/in/input.csv")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Fatalf("GetObject = %q, want %q", got, first)
	}

	second := []byte("replaced")
	if err := store.PutObject(ctx, "in/input.csv", second); err != nil {
		t.Fatalf("PutObject overwrite: %v", err)
	}
	got, err = store.GetObject(ctx, "in/input.csv")
	if err != nil {
		t.Fatalf("GetObject after overwrite: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("GetObject after overwrite = %q, want %q", got, second)
	}

	if err := store.PutObject(ctx, "out/statistics.json", []byte("{}")); err != nil {
		t.Fatalf("PutObject output: %v", err)
	}
	objects, err := store.ListObjects(ctx, "in/")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != "in/input.csv" {
		t.Fatalf("ListObjects(in/) = %+v, want only in/input.csv", objects)
	}
}

func TestMemoryStorage(t *testing.T) {
	exerciseStore(t, NewMemoryStorage())
}

func TestMemoryStorage_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	data := []byte("abc")
	if err := store.PutObject(ctx, "k", data); err != nil {
		t.Fatal(err)
	}
	data[0] = 'x'
	got, _ := store.GetObject(ctx, "k")
	got[1] = 'y'
	again, _ := store.GetObject(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored object mutated: %q", again)
	}
}

func TestMemoryStorage_Watch(t *testing.T) {
	store := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Watch(ctx, "in/")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := store.PutObject(ctx, "out/statistics.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := store.PutObject(ctx, "in/input.csv", []byte("a,b\n")); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Key != "in/input.csv" || ev.Size != 4 || ev.Source != "memory" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestLocalStorage(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, store)
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.PutObject(context.Background(), "../outside.csv", []byte("x")); err == nil {
		t.Fatal("expected error for key escaping root")
	}
}

func TestLocalStorage_ListSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "in"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "in", tempPrefix+"123"), []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	objects, err := store.ListObjects(context.Background(), "in/")
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 0 {
		t.Fatalf("ListObjects = %+v, want none", objects)
	}
}

func TestLocalStorage_Watch(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Watch(ctx, "in/input.csv")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := store.PutObject(ctx, "in/other.csv", []byte("ignored")); err != nil {
		t.Fatal(err)
	}
	if err := store.PutObject(ctx, "in/input.csv", []byte("a,b\n")); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Key == "in/other.csv" {
				t.Fatalf("event for key outside prefix: %+v", ev)
			}
			if ev.Key == "in/input.csv" {
				if ev.Source != "local" {
					t.Fatalf("Source = %q, want local", ev.Source)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for in/input.csv event")
		}
	}
}

func TestBackendClient_LocalFilesystem(t *testing.T) {
	store := NewBackendClient(cmstorage.NewLocalFilesystemBackend(t.TempDir()), "filesystem")
	exerciseStore(t, store)
}

func TestBackendClient_ListReportsModificationTimeOnly(t *testing.T) {
	store := NewBackendClient(cmstorage.NewLocalFilesystemBackend(t.TempDir()), "filesystem")
	ctx := context.Background()

	if err := store.PutObject(ctx, "in/input.csv", []byte("Gender,State,Experience,Income\n")); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	objects, err := store.ListObjects(ctx, "in/")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objects) != 1 {
		t.Fatalf("ListObjects(in/) = %+v, want one object", objects)
	}
	got := objects[0]
	if got.Size != 0 || got.ETag != "" {
		t.Errorf("ListObjects reported Size=%d ETag=%q, want both unset", got.Size, got.ETag)
	}
	if got.LastModified.IsZero() {
		t.Error("ListObjects reported zero LastModified")
	}
}

func TestPollingNotifier(t *testing.T) {
	store := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.PutObject(ctx, "in/input.csv", []byte("baseline")); err != nil {
		t.Fatal(err)
	}

	poller := NewPollingNotifier(store, 10*time.Millisecond, zerolog.Nop())
	events, err := poller.Watch(ctx, "in/")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// baseline must not be reported
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for baseline object: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if err := store.PutObject(ctx, "in/input.csv", []byte("changed content")); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Key != "in/input.csv" || ev.Source != "poll" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll event")
	}
}

type recordingPublisher struct {
	events []ObjectEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event ObjectEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func TestWithPublisher(t *testing.T) {
	t.Run("publishes after write", func(t *testing.T) {
		inner := NewMemoryStorage()
		pub := &recordingPublisher{}
		store := WithPublisher(inner, pub, "redis")

		if err := store.PutObject(context.Background(), "/in/input.csv", []byte("abc")); err != nil {
			t.Fatal(err)
		}
		if len(pub.events) != 1 {
			t.Fatalf("published %d events, want 1", len(pub.events))
		}
		if ev := pub.events[0]; ev.Key != "in/input.csv" || ev.Size != 3 || ev.Source != "redis" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if _, err := inner.GetObject(context.Background(), "in/input.csv"); err != nil {
			t.Fatalf("object not stored: %v", err)
		}
	})

	t.Run("publish failure surfaces", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("connection refused")}
		store := WithPublisher(NewMemoryStorage(), pub, "redis")
		if err := store.PutObject(context.Background(), "in/input.csv", []byte("abc")); err == nil {
			t.Fatal("expected error when publish fails")
		}
	})
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisHost: "cache", RedisPort: "6380", RedisDB: 2})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = buildRedisOptions(config.CacheConfig{RedisURL: "redis://:secret@example.com:6379/3"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Addr != "example.com:6379" || opts.Password != "secret" || opts.DB != 3 {
		t.Fatalf("unexpected options from url %+v", opts)
	}

	if _, err := buildRedisOptions(config.CacheConfig{RedisURL: "://bad"}); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestNewNotifier(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("native on memory", func(t *testing.T) {
		store := NewMemoryStorage()
		n, err := NewNotifier(store, config.TriggerConfig{Source: config.SourceNative}, nil, logger)
		if err != nil {
			t.Fatal(err)
		}
		if n != Notifier(store) {
			t.Fatal("expected the store itself as notifier")
		}
	})

	t.Run("native unsupported", func(t *testing.T) {
		store := NewBackendClient(cmstorage.NewLocalFilesystemBackend(t.TempDir()), "filesystem")
		_, err := NewNotifier(store, config.TriggerConfig{Source: config.SourceNative}, nil, logger)
		if !errors.Is(err, ErrNotificationsUnsupported) {
			t.Fatalf("error = %v, want ErrNotificationsUnsupported", err)
		}
	})

	t.Run("poll", func(t *testing.T) {
		n, err := NewNotifier(NewMemoryStorage(), config.TriggerConfig{Source: config.SourcePoll, PollInterval: time.Second}, nil, logger)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := n.(*PollingNotifier); !ok {
			t.Fatalf("got %T, want *PollingNotifier", n)
		}
	})

	t.Run("redis without connection", func(t *testing.T) {
		if _, err := NewNotifier(NewMemoryStorage(), config.TriggerConfig{Source: config.SourceRedis}, nil, logger); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestNew_Memory(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{Backend: config.BackendMemory}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*MemoryStorage); !ok {
		t.Fatalf("got %T, want *MemoryStorage", store)
	}

	if _, err := New(context.Background(), config.StorageConfig{Backend: "ftp"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
