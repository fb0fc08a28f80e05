package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// KV is the TTL key-value contract shared by the pending-action store and
// the token/price caches. A ttl <= 0 stores the entry without expiry.
// Get never returns an expired entry.
type KV interface {
	Get(key string) (Result, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Keys(pattern string) ([]string, error)
}

type Result struct {
	Hit   bool
	Value []byte
	Age   time.Duration
}

// Store is a sqlite-backed KV shared across processes.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

var _ KV = (*Store)(nil)

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS kv_entries (key TEXT PRIMARY KEY, value BLOB NOT NULL, created_at INTEGER NOT NULL, ttl_ms INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	// Prune expired entries on startup to prevent unbounded growth.
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes every entry whose TTL has expired. Entries without a TTL are kept.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	nowMS := s.now().UTC().UnixMilli()
	_, err := s.db.Exec("DELETE FROM kv_entries WHERE ttl_ms > 0 AND created_at + ttl_ms <= ?", nowMS)
	if err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

func (s *Store) Get(key string) (Result, error) {
	var value []byte
	var createdMS int64
	var ttlMS int64
	err := s.db.QueryRow("SELECT value, created_at, ttl_ms FROM kv_entries WHERE key = ?", key).Scan(&value, &createdMS, &ttlMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{Hit: false}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	age := s.now().UTC().Sub(time.UnixMilli(createdMS).UTC())
	if age < 0 {
		age = 0
	}
	if ttlMS > 0 && age >= time.Duration(ttlMS)*time.Millisecond {
		return Result{Hit: false}, nil
	}
	return Result{Hit: true, Value: value, Age: age}, nil
}

func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	return s.withLock(func() error {
		ttlMS := ttl.Milliseconds()
		if ttlMS < 0 {
			ttlMS = 0
		}
		_, err := s.db.Exec(`
			INSERT INTO kv_entries (key, value, created_at, ttl_ms)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value=excluded.value,
				created_at=excluded.created_at,
				ttl_ms=excluded.ttl_ms
		`, key, value, s.now().UTC().UnixMilli(), ttlMS)
		if err != nil {
			return fmt.Errorf("cache write: %w", err)
		}
		return nil
	})
}

func (s *Store) Delete(key string) error {
	return s.withLock(func() error {
		if _, err := s.db.Exec("DELETE FROM kv_entries WHERE key = ?", key); err != nil {
			return fmt.Errorf("cache delete: %w", err)
		}
		return nil
	})
}

// Keys lists live keys matching a glob pattern such as "pending_command:*".
func (s *Store) Keys(pattern string) ([]string, error) {
	nowMS := s.now().UTC().UnixMilli()
	rows, err := s.db.Query("SELECT key FROM kv_entries WHERE key GLOB ? AND (ttl_ms = 0 OR created_at + ttl_ms > ?) ORDER BY key", pattern, nowMS)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache keys: %w", err)
	}
	return keys, nil
}

func (s *Store) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}
