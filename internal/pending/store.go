package pending

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ggonzalez94/defi-chat/internal/cache"
	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
)

const (
	KeyPrefix  = "pending_command:"
	DefaultTTL = 30 * time.Minute
)

// Action is the command a user is expected to confirm. Only the raw text and
// the intent that produced it are kept; slots are re-extracted on resume.
type Action struct {
	UserKey    string        `json:"user_key"`
	RawCommand string        `json:"raw_command"`
	IntentKind string        `json:"intent_kind"`
	CreatedAt  time.Time     `json:"created_at"`
	TTL        time.Duration `json:"ttl"`
}

func (a Action) ExpiresAt() time.Time {
	return a.CreatedAt.Add(a.TTL)
}

// Store keeps at most one pending action per user key. Writes are
// last-write-wins; no lock is taken across Get and Clear.
type Store struct {
	kv  cache.KV
	ttl time.Duration
	now func() time.Time
}

func NewStore(kv cache.KV, ttl time.Duration) *Store {
	return NewStoreWithClock(kv, ttl, time.Now)
}

func NewStoreWithClock(kv cache.KV, ttl time.Duration, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Store{kv: kv, ttl: ttl, now: now}
}

// NormalizeUserKey lower-cases and trims a user identity, so wallet
// addresses in different cases share one slot.
func NormalizeUserKey(userKey string) string {
	return strings.ToLower(strings.TrimSpace(userKey))
}

func Key(userKey string) string {
	return KeyPrefix + NormalizeUserKey(userKey)
}

func (s *Store) Put(userKey, rawCommand, intentKind string) error {
	norm := NormalizeUserKey(userKey)
	if norm == "" {
		return clierr.New(clierr.CodeUsage, "pending action requires a user key")
	}
	action := Action{
		UserKey:    norm,
		RawCommand: rawCommand,
		IntentKind: intentKind,
		CreatedAt:  s.now().UTC(),
		TTL:        s.ttl,
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode pending action", err)
	}
	if err := s.kv.Set(Key(norm), payload, s.ttl); err != nil {
		return clierr.Wrap(clierr.CodeState, "store pending action", err)
	}
	return nil
}

// Get returns the live pending action for userKey. The bool is false when
// nothing is stored or the entry has expired.
func (s *Store) Get(userKey string) (Action, bool, error) {
	res, err := s.kv.Get(Key(userKey))
	if err != nil {
		return Action{}, false, clierr.Wrap(clierr.CodeState, "read pending action", err)
	}
	if !res.Hit {
		return Action{}, false, nil
	}
	var action Action
	if err := json.Unmarshal(res.Value, &action); err != nil {
		// A corrupt record is treated as absent and dropped.
		_ = s.kv.Delete(Key(userKey))
		return Action{}, false, nil
	}
	if action.TTL > 0 && !s.now().Before(action.ExpiresAt()) {
		return Action{}, false, nil
	}
	return action, true, nil
}

// Clear is idempotent.
func (s *Store) Clear(userKey string) error {
	if err := s.kv.Delete(Key(userKey)); err != nil {
		return clierr.Wrap(clierr.CodeState, "clear pending action", err)
	}
	return nil
}

// List returns every live pending action ordered by user key.
func (s *Store) List() ([]Action, error) {
	keys, err := s.kv.Keys(KeyPrefix + "*")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeState, "list pending actions", err)
	}
	out := make([]Action, 0, len(keys))
	for _, key := range keys {
		action, ok, err := s.Get(strings.TrimPrefix(key, KeyPrefix))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserKey < out[j].UserKey })
	return out, nil
}

func (a Action) String() string {
	return fmt.Sprintf("%s: %s (%s)", a.UserKey, a.RawCommand, a.IntentKind)
}
