package stores

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

// backend is the method set shared by every store.
type backend interface {
	Put(ctx context.Context, id string, data []byte) error
	Fetch(ctx context.Context, id string) ([]byte, bool, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	IDs(ctx context.Context) ([]string, error)
	Size(ctx context.Context) (int64, error)
	Location() string
	Close() error
}

// setupTestStore creates a migrated SQLite store in a temp directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func allBackends(t *testing.T) map[string]backend {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	return map[string]backend{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": setupTestStore(t),
	}
}

func TestBackends_PutFetchDelete(t *testing.T) {
	for name, store := range allBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := store.Fetch(ctx, "abc"); err != nil || ok {
				t.Fatalf("Expected miss on empty store, got ok=%v err=%v", ok, err)
			}

			if err := store.Put(ctx, "abc", []byte(`{"v":1}`)); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			data, ok, err := store.Fetch(ctx, "abc")
			if err != nil || !ok {
				t.Fatalf("Fetch() = ok=%v err=%v", ok, err)
			}
			if !bytes.Equal(data, []byte(`{"v":1}`)) {
				t.Errorf("Expected stored data, got %q", data)
			}

			// Overwrite replaces the whole entry.
			if err := store.Put(ctx, "abc", []byte(`{"v":22}`)); err != nil {
				t.Fatalf("Put() overwrite error = %v", err)
			}
			data, _, _ = store.Fetch(ctx, "abc")
			if string(data) != `{"v":22}` {
				t.Errorf("Expected overwritten data, got %q", data)
			}

			if err := store.Delete(ctx, "abc"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := store.Delete(ctx, "abc"); err != nil {
				t.Errorf("Expected deleting an absent id to succeed, got %v", err)
			}
			if _, ok, _ := store.Fetch(ctx, "abc"); ok {
				t.Error("Expected entry to be gone after Delete")
			}
		})
	}
}

func TestBackends_ListSizeClear(t *testing.T) {
	for name, store := range allBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, id := range []string{"c", "a", "b"} {
				if err := store.Put(ctx, id, []byte("1234")); err != nil {
					t.Fatalf("Put(%s) error = %v", id, err)
				}
			}

			ids, err := store.IDs(ctx)
			if err != nil {
				t.Fatalf("IDs() error = %v", err)
			}
			if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
				t.Errorf("Expected sorted ids [a b c], got %v", ids)
			}

			size, err := store.Size(ctx)
			if err != nil {
				t.Fatalf("Size() error = %v", err)
			}
			if size != 12 {
				t.Errorf("Expected 12 bytes, got %d", size)
			}

			n, err := store.DeleteAll(ctx)
			if err != nil {
				t.Fatalf("DeleteAll() error = %v", err)
			}
			if n != 3 {
				t.Errorf("Expected 3 removed, got %d", n)
			}
			if ids, _ := store.IDs(ctx); len(ids) != 0 {
				t.Errorf("Expected empty store, got %v", ids)
			}

			if store.Location() == "" {
				t.Error("Expected a location")
			}
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "nested", "cache"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	ctx := context.Background()
	if err := store.Put(ctx, "deadbeef", []byte("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(store.Location(), "deadbeef.cache")); err != nil {
		t.Errorf("Expected deadbeef.cache on disk: %v", err)
	}

	// Stray files are not entries.
	if err := os.WriteFile(filepath.Join(store.Location(), "notes.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}
	ids, _ := store.IDs(ctx)
	if len(ids) != 1 {
		t.Errorf("Expected only the cache entry to be listed, got %v", ids)
	}

	if err := store.Put(ctx, "../escape", []byte("x")); err == nil {
		t.Error("Expected error for id containing a path separator")
	}
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("Expected error for empty directory")
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("abc")
	_ = store.Put(ctx, "k", data)
	data[0] = 'z'

	got, _, _ := store.Fetch(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Expected stored copy to be unaffected, got %q", got)
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// A second migration is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	var count int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&count); err != nil {
		t.Errorf("table cache_entries does not exist or is not accessible: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_Uninitialized(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("Expected error for empty path")
	}

	store, _ := NewSQLiteStore(Config{Path: ":memory:"})
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Error("Expected health check to fail before Init")
	}
	if err := store.Migrate(context.Background()); err == nil {
		t.Error("Expected migrate to fail before Init")
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	if err := store.Put(ctx, "id", []byte("persisted")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	_ = store.Close()

	reopened, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	data, ok, err := reopened.Fetch(ctx, "id")
	if err != nil || !ok || string(data) != "persisted" {
		t.Errorf("Expected persisted entry, got %q ok=%v err=%v", data, ok, err)
	}
}
