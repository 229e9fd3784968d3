package cache

import (
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-core/internal/observability"
)

// entry pairs a value with its expiry instant and invalidation tags.
type entry[V any] struct {
	value     V
	expiresAt int64 // epoch ms
	tags      []string
}

// expired is the single expiry comparison shared by the lazy read path
// and the eager sweep so both always agree.
func (e entry[V]) expired(nowMs int64) bool {
	return nowMs >= e.expiresAt
}

// Store is a namespaced in-memory TTL key-value store. Each namespace owns
// its entries; invalidating one store never touches another.
type Store[V any] struct {
	name       string
	defaultTTL time.Duration
	metrics    *observability.Metrics

	mu      sync.RWMutex
	entries map[string]entry[V]
	byTag   map[string]map[string]struct{}

	clock func() time.Time
}

// NewStore creates a store with a per-namespace default TTL.
func NewStore[V any](name string, defaultTTL time.Duration, metrics *observability.Metrics) *Store[V] {
	return &Store[V]{
		name:       name,
		defaultTTL: defaultTTL,
		metrics:    metrics,
		entries:    make(map[string]entry[V]),
		byTag:      make(map[string]map[string]struct{}),
		clock:      time.Now,
	}
}

// Set stores value under key with the namespace default TTL.
func (s *Store[V]) Set(key string, value V) {
	s.SetTagged(key, value, s.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
func (s *Store[V]) SetTTL(key string, value V, ttl time.Duration) {
	s.SetTagged(key, value, ttl)
}

// SetTagged stores value with an explicit TTL and invalidation tags.
// A later InvalidateTag with any of the tags drops the entry.
func (s *Store[V]) SetTagged(key string, value V, ttl time.Duration, tags ...string) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := s.clock().Add(ttl).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[key]; ok {
		s.dropTagsLocked(key, old.tags)
	}
	s.entries[key] = entry[V]{value: value, expiresAt: expiresAt, tags: tags}
	for _, tag := range tags {
		keys := s.byTag[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			s.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Get returns the live value for key. An expired entry is removed on the
// spot and reported as absent, so no value is ever returned past its TTL.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	nowMs := s.clock().UnixMilli()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		s.metrics.RecordCacheMiss(s.name)
		return zero, false
	}
	if e.expired(nowMs) {
		s.mu.Lock()
		// re-check: the entry may have been replaced since the read
		if cur, ok := s.entries[key]; ok && cur.expired(nowMs) {
			s.removeLocked(key, cur)
		}
		s.mu.Unlock()
		s.metrics.RecordCacheMiss(s.name)
		return zero, false
	}
	s.metrics.RecordCacheHit(s.name)
	return e.value, true
}

// Invalidate removes a single key.
func (s *Store[V]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.removeLocked(key, e)
	}
}

// InvalidateTag removes every entry carrying the given tag and returns
// the number of entries dropped.
func (s *Store[V]) InvalidateTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.byTag[tag]
	if !ok {
		return 0
	}
	dropped := 0
	for key := range keys {
		if e, ok := s.entries[key]; ok {
			s.removeLocked(key, e)
			dropped++
		}
	}
	delete(s.byTag, tag)
	return dropped
}

// InvalidateAll clears the namespace.
func (s *Store[V]) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]entry[V])
	s.byTag = make(map[string]map[string]struct{})
	s.metrics.RecordCacheEviction(s.name, n)
}

// Len returns the number of stored entries, live or not yet swept.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes all entries expired as of now and returns how many were
// dropped. Called on a fixed interval so memory does not grow unbounded
// under low read volume.
func (s *Store[V]) Sweep(now time.Time) int {
	nowMs := now.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for key, e := range s.entries {
		if e.expired(nowMs) {
			s.removeLocked(key, e)
			dropped++
		}
	}
	return dropped
}

func (s *Store[V]) removeLocked(key string, e entry[V]) {
	delete(s.entries, key)
	s.dropTagsLocked(key, e.tags)
	s.metrics.RecordCacheEviction(s.name, 1)
}

func (s *Store[V]) dropTagsLocked(key string, tags []string) {
	for _, tag := range tags {
		if keys, ok := s.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.byTag, tag)
			}
		}
	}
}
