package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSetGetAndExpiry(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	if err := store.Set("k1", []byte(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get("k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.Hit || string(res.Value) != `{"v":1}` {
		t.Fatalf("expected fresh hit, got %+v", res)
	}

	now = now.Add(61 * time.Second)
	res, err = store.Get("k1")
	if err != nil {
		t.Fatalf("Get after expiry failed: %v", err)
	}
	if res.Hit {
		t.Fatalf("expected miss after ttl, got %+v", res)
	}
}

func TestStoreNoExpiryAndDelete(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	if err := store.Set("addr:0xabc:1", []byte(`{}`), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	now = now.Add(24 * 365 * time.Hour)
	res, err := store.Get("addr:0xabc:1")
	if err != nil || !res.Hit {
		t.Fatalf("expected permanent entry to survive, got %+v err=%v", res, err)
	}
	if err := store.Delete("addr:0xabc:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("addr:0xabc:1"); err != nil {
		t.Fatalf("second Delete must be a no-op, got %v", err)
	}
	res, _ = store.Get("addr:0xabc:1")
	if res.Hit {
		t.Fatal("expected miss after delete")
	}
}

func TestStoreKeysSkipsExpired(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	_ = store.Set("pending_command:alice", []byte("a"), time.Minute)
	_ = store.Set("pending_command:bob", []byte("b"), time.Hour)
	_ = store.Set("price:ETH:1", []byte("c"), time.Hour)
	now = now.Add(2 * time.Minute)

	keys, err := store.Keys("pending_command:*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "pending_command:bob" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 8
	const iterations = 20

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				res, err := store.Get(key)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !res.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

func TestMemoryStoreExpiryWithClock(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStoreWithClock(func() time.Time { return now })

	_ = store.Set("price:ETH:1", []byte("3000"), 5*time.Minute)
	if res, _ := store.Get("price:ETH:1"); !res.Hit {
		t.Fatal("expected hit inside ttl")
	}
	now = now.Add(5 * time.Minute)
	if res, _ := store.Get("price:ETH:1"); res.Hit {
		t.Fatal("expected miss at ttl boundary")
	}
	keys, _ := store.Keys("price:*")
	if len(keys) != 0 {
		t.Fatalf("expected expired key to be gone, got %v", keys)
	}
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("shared", []byte(fmt.Sprintf("value-%02d", n)), time.Minute)
			_, _ = store.Get("shared")
		}(i)
	}
	wg.Wait()

	res, err := store.Get("shared")
	if err != nil || !res.Hit {
		t.Fatalf("expected a surviving value, got %+v err=%v", res, err)
	}
	if len(res.Value) != len("value-00") {
		t.Fatalf("value corrupted: %q", res.Value)
	}
}
