package imagecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidCacheMaxEntries is returned when the entry budget is not positive.
	ErrInvalidCacheMaxEntries = errors.New("cache max entries must be positive")
	// ErrInvalidCacheMaxBytes is returned when the byte budget is not positive.
	ErrInvalidCacheMaxBytes = errors.New("cache max bytes must be positive")
)

// EntryKind distinguishes cached successes from cached failures.
type EntryKind int

const (
	// EntryPositive holds image bytes and their sniffed format.
	EntryPositive EntryKind = iota
	// EntryNegative records an origin failure class for the negative TTL,
	// suppressing repeated origin calls for a cooling-off asset.
	EntryNegative
)

// Entry is one cache record. Expiry is absolute wall-clock time, not
// sliding; an expired entry is logically absent even before eviction.
type Entry struct {
	Key       string
	Kind      EntryKind
	Payload   []byte
	Format    Format
	Corrected bool
	ErrClass  error
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Size returns the entry's payload footprint in bytes.
func (e *Entry) Size() int {
	return len(e.Payload)
}

// Expired reports whether the entry is past its absolute expiry.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// NewPositiveEntry builds a positive entry with an absolute expiry of now+ttl.
func NewPositiveEntry(payload []byte, format Format, corrected bool, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Kind:      EntryPositive,
		Payload:   payload,
		Format:    format,
		Corrected: corrected,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// NewNegativeEntry builds a negative entry recording errClass.
func NewNegativeEntry(errClass error, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Kind:      EntryNegative,
		ErrClass:  errClass,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// LoaderFunc performs the origin fetch and correction for one cache key.
// It returns an installable entry (positive or negative); a non-nil error
// means the result must not be cached (e.g. the caller's context died).
type LoaderFunc func(ctx context.Context) (*Entry, error)

// Store is the process-local cache. It exclusively owns all entries and
// in-flight request groups; all mutation goes through GetOrLoad, Put and
// Remove, each atomic with respect to a single key.
//
// Capacity and correctness are governed independently: absolute TTLs
// decide whether an entry may be served at all, while LRU eviction over
// the entry and byte budgets decides what physically stays resident.
type Store struct {
	mu          sync.Mutex
	lru         *simplelru.LRU[string, *Entry]
	curBytes    int64
	maxBytes    int64
	generations map[string]uint64

	flight singleflight.Group
}

// NewStore creates a Store bounded by maxEntries and maxBytes of payload.
func NewStore(maxEntries int, maxBytes int64) (*Store, error) {
	if maxEntries <= 0 {
		return nil, ErrInvalidCacheMaxEntries
	}
	if maxBytes <= 0 {
		return nil, ErrInvalidCacheMaxBytes
	}

	s := &Store{
		maxBytes:    maxBytes,
		generations: make(map[string]uint64),
	}
	lru, err := simplelru.NewLRU[string, *Entry](maxEntries, func(key string, e *Entry) {
		s.curBytes -= int64(e.Size())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	s.lru = lru
	return s, nil
}

// Get returns the entry for key, treating expired entries as absent.
func (s *Store) Get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key string) (*Entry, bool) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	if e.Expired(time.Now()) {
		s.lru.Remove(key)
		return nil, false
	}
	return e, true
}

// Put installs entry under key, evicting least-recently-used entries
// while the store is over its byte budget.
func (s *Store) Put(key string, entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, entry)
}

func (s *Store) putLocked(key string, entry *Entry) {
	entry.Key = key

	// simplelru updates values in place without firing the evict
	// callback, which would corrupt the byte accounting.
	s.lru.Remove(key)

	s.lru.Add(key, entry)
	s.curBytes += int64(entry.Size())

	for s.curBytes > s.maxBytes && s.lru.Len() > 1 {
		evictedKey, _, _ := s.lru.RemoveOldest()
		slog.Debug("[IMAGE-CACHE] evicted cache entry over byte budget",
			"key", evictedKey,
			"current_bytes", s.curBytes,
			"max_bytes", s.maxBytes,
		)
	}
}

// Remove deletes the entry for key, reporting whether one was resident.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Remove(key)
}

// Keys returns a snapshot of all resident cache keys.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.lru.Keys()
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// Len returns the number of resident entries, including expired ones not
// yet evicted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// SizeBytes returns the resident payload footprint.
func (s *Store) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curBytes
}

// Generation returns the current generation for an asset identity.
func (s *Store) Generation(identity string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[identity]
}

// BumpGeneration advances the generation for an asset identity. Loads
// that began before the bump cannot install their result, closing the
// lost-update window between a pre-edit fetch and an invalidation.
func (s *Store) BumpGeneration(identity string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[identity]++
	return s.generations[identity]
}

// GetOrLoad is the coalescing entry point. A valid resident entry is
// returned directly (hit=true). Otherwise the caller joins the in-flight
// group for key, and exactly one loader invocation runs per key no
// matter how many callers are waiting: every waiter receives the same
// entry. The loader's result is installed unless the identity's
// generation moved while the loader ran, in which case the bytes are
// still returned to the waiters but never cached.
func (s *Store) GetOrLoad(ctx context.Context, key, identity string, loader LoaderFunc) (*Entry, bool, error) {
	if e, ok := s.Get(key); ok {
		return e, true, nil
	}

	result, err, _ := s.flight.Do(key, func() (any, error) {
		// Double-check after acquiring the flight: another goroutine may
		// have installed the entry between our lookup and this point.
		if e, ok := s.Get(key); ok {
			return e, nil
		}

		gen := s.Generation(identity)

		e, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.generations[identity] == gen {
			s.putLocked(key, e)
		} else {
			slog.Debug("[IMAGE-CACHE] discarding load result after invalidation",
				"key", key,
				"asset", identity,
			)
		}
		s.mu.Unlock()

		return e, nil
	})
	if err != nil {
		return nil, false, err
	}

	return result.(*Entry), false, nil
}

// Purge drops every entry. Generations are preserved.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
}
