// Package token is the ephemeral query cache: it hands out short random keys
// that stand in for a full request context across a transport round-trip, so
// callback payloads stay small. Entries expire after a fixed TTL and are
// swept lazily whenever a new token is created.
package token

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

// Kind tags what a stored action refers to.
type Kind string

const (
	KindDownload     Kind = "download"
	KindAudio        Kind = "audio"
	KindSearchResult Kind = "search_result"
	KindCacheChoice  Kind = "cache_choice"
	KindQualityPick  Kind = "quality_pick"
)

// Action is the typed request context a token resolves to. FormatID and
// Quality are set only for quality picks.
type Action struct {
	Kind     Kind
	URL      string
	OwnerID  int64
	Index    int
	FormatID string
	Quality  string
}

const (
	keyLength   = 16
	keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type entry struct {
	action    Action
	createdAt time.Time
}

// Store maps random keys to pending actions with a TTL.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a token store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores an action and returns its key. Expired entries are swept as a
// side effect.
func (s *Store) Put(action Action) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	key := newKey()
	s.entries[key] = entry{action: action, createdAt: s.now()}
	return key
}

// Get resolves a key. Keys may be read more than once until they expire.
func (s *Store) Get(key string) (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Action{}, false
	}
	if s.now().Sub(e.createdAt) > s.ttl {
		delete(s.entries, key)
		return Action{}, false
	}
	return e.action, true
}

// Len reports how many live entries the store holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for key, e := range s.entries {
		if e.createdAt.Before(cutoff) {
			delete(s.entries, key)
		}
	}
}

func newKey() string {
	buf := make([]byte, keyLength)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failure means the process is in serious trouble.
			panic(err)
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return string(buf)
}
