package pending

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ggonzalez94/defi-chat/internal/cache"
	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	kv := cache.NewMemoryStoreWithClock(clock.Now)
	return NewStoreWithClock(kv, 30*time.Minute, clock.Now), clock
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore()
	if err := store.Put("user-1", "swap 1 ETH for USDC", "Swap"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	action, ok, err := store.Get("user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected pending action")
	}
	if action.RawCommand != "swap 1 ETH for USDC" || action.IntentKind != "Swap" {
		t.Fatalf("unexpected action: %+v", action)
	}
	if action.TTL != 30*time.Minute {
		t.Fatalf("unexpected ttl %s", action.TTL)
	}
}

func TestGetAfterExpiryReturnsNothing(t *testing.T) {
	store, clock := newTestStore()
	if err := store.Put("user-1", "swap 1 ETH for USDC", "Swap"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	clock.Advance(29 * time.Minute)
	if _, ok, _ := store.Get("user-1"); !ok {
		t.Fatal("expected action before expiry")
	}
	clock.Advance(time.Minute)
	_, ok, err := store.Get("user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatal("expected no action after ttl")
	}
}

func TestExpiryCheckedOnRecordEvenIfBackendKeepsIt(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	// Backend never expires anything on its own.
	kv := cache.NewMemoryStoreWithClock(func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) })
	store := NewStoreWithClock(kv, time.Minute, clock.Now)
	if err := store.Put("u", "bridge 1 eth to base", "Bridge"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, ok, _ := store.Get("u"); ok {
		t.Fatal("expected record-level expiry to hide the action")
	}
}

func TestPutOverwritesAndNormalizesKey(t *testing.T) {
	store, _ := newTestStore()
	if err := store.Put("0xABCdef", "swap 1 ETH for USDC", "Swap"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put("  0xabcDEF ", "bridge 1 ETH to base", "Bridge"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	action, ok, err := store.Get("0xabcdef")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if action.IntentKind != "Bridge" {
		t.Fatalf("expected last write to win, got %+v", action)
	}
	all, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single pending action, got %d", len(all))
	}
}

func TestClearIsIdempotent(t *testing.T) {
	store, _ := newTestStore()
	if err := store.Put("u", "send 1 eth to 0x1", "Transfer"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Clear("u"); err != nil {
			t.Fatalf("Clear #%d failed: %v", i, err)
		}
	}
	if _, ok, _ := store.Get("u"); ok {
		t.Fatal("expected action to be cleared")
	}
}

func TestPutRequiresUserKey(t *testing.T) {
	store, _ := newTestStore()
	err := store.Put("   ", "swap", "Swap")
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestConcurrentPutLeavesOneIntactAction(t *testing.T) {
	store, _ := newTestStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Put("same-user", fmt.Sprintf("swap %d ETH for USDC", i), "Swap")
		}(i)
	}
	wg.Wait()

	action, ok, err := store.Get("same-user")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	var n int
	if _, err := fmt.Sscanf(action.RawCommand, "swap %d ETH for USDC", &n); err != nil {
		t.Fatalf("pending command was corrupted: %q", action.RawCommand)
	}
	if n < 0 || n >= 50 {
		t.Fatalf("unexpected command index %d", n)
	}
	all, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one action, got %d", len(all))
	}
}

func TestSQLiteBackedStore(t *testing.T) {
	dir := t.TempDir()
	kv, err := cache.Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "state.lock"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	store := NewStore(kv, 0)
	if err := store.Put("alice", "swap 1 eth for usdc", "Swap"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put("bob", "bridge 1 eth to scroll", "Bridge"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	all, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 || all[0].UserKey != "alice" || all[1].UserKey != "bob" {
		t.Fatalf("unexpected list: %+v", all)
	}
	if all[0].TTL != DefaultTTL {
		t.Fatalf("expected default ttl, got %s", all[0].TTL)
	}
}

type brokenKV struct{}

func (brokenKV) Get(string) (cache.Result, error) { return cache.Result{}, errors.New("disk gone") }
func (brokenKV) Set(string, []byte, time.Duration) error { return errors.New("disk gone") }
func (brokenKV) Delete(string) error { return errors.New("disk gone") }
func (brokenKV) Keys(string) ([]string, error) { return nil, errors.New("disk gone") }

func TestBackendFailuresAreStateErrors(t *testing.T) {
	store := NewStore(brokenKV{}, time.Minute)
	if err := store.Put("u", "swap", "Swap"); clierr.CodeOf(err) != clierr.CodeState {
		t.Fatalf("expected state error from Put, got %v", err)
	}
	if _, _, err := store.Get("u"); clierr.CodeOf(err) != clierr.CodeState {
		t.Fatalf("expected state error from Get, got %v", err)
	}
	if err := store.Clear("u"); clierr.CodeOf(err) != clierr.CodeState {
		t.Fatalf("expected state error from Clear, got %v", err)
	}
}
