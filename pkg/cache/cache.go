// Package cache implements the outdatable per-host cache of §4.B: a
// host -> (data, last_refresh) map with a staleness predicate, invalidation,
// and durable mirroring through a configstore.Store. Grounded on the
// teacher's pkg/plan/store.go JSON-with-atomic-write persistence idiom,
// generalized from "one plan" to "many host-keyed entries".
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zph/fleetd/pkg/configstore"
)

// Entry is one cached value plus the time it was last refreshed. A zero
// LastRefresh means "never refreshed".
type Entry[T any] struct {
	Data        T         `json:"data"`
	LastRefresh time.Time `json:"last_refresh"`
}

// Store is a per-host outdatable cache for a value of type T.
type Store[T any] struct {
	mu      sync.RWMutex
	timeout time.Duration
	entries map[string]Entry[T]
}

// New creates a Store with the given staleness timeout.
func New[T any](timeout time.Duration) *Store[T] {
	return &Store[T]{
		timeout: timeout,
		entries: make(map[string]Entry[T]),
	}
}

// Get returns the entry for host, and whether one exists.
func (s *Store[T]) Get(host string) (Entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[host]
	return e, ok
}

// Set stores data for host, stamping LastRefresh to now.
func (s *Store[T]) Set(host string, data T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[host] = Entry[T]{Data: data, LastRefresh: time.Now().UTC()}
}

// Remove drops a host's entry entirely (used when a host leaves the
// inventory, §8 invariant: cache keys ⊆ inventory hosts).
func (s *Store[T]) Remove(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, host)
}

// Invalidate clears LastRefresh without discarding the last-known data, so
// the next refresh is unconditional (§4.F.5: "mark it stale so the next
// refresh reconciles reality").
func (s *Store[T]) Invalidate(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[host]
	if !ok {
		return
	}
	e.LastRefresh = time.Time{}
	s.entries[host] = e
}

// Outdated reports whether host's entry is stale under timeout: either
// never refreshed, or refreshed longer than timeout ago (§8 invariant).
func (s *Store[T]) Outdated(host string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[host]
	if !ok || e.LastRefresh.IsZero() {
		return true
	}
	return time.Since(e.LastRefresh) > s.timeout
}

// OutdatedHosts returns every host whose entry is stale.
func (s *Store[T]) OutdatedHosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hosts []string
	for h, e := range s.entries {
		if e.LastRefresh.IsZero() || time.Since(e.LastRefresh) > s.timeout {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// ItemsFiltered returns the entries for the given hosts, or every entry if
// wanted is empty.
func (s *Store[T]) ItemsFiltered(wanted []string) map[string]Entry[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Entry[T])
	if len(wanted) == 0 {
		for h, e := range s.entries {
			out[h] = e
		}
		return out
	}
	for _, h := range wanted {
		if e, ok := s.entries[h]; ok {
			out[h] = e
		}
	}
	return out
}

// Hosts returns every host currently present in the cache.
func (s *Store[T]) Hosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := make([]string, 0, len(s.entries))
	for h := range s.entries {
		hosts = append(hosts, h)
	}
	return hosts
}

// Persist serializes the whole cache to JSON and writes it to cs under key.
func (s *Store[T]) Persist(cs configstore.Store, key string) error {
	s.mu.RLock()
	data, err := json.Marshal(s.entries)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache %q: %w", key, err)
	}
	if err := cs.Set(key, data); err != nil {
		return fmt.Errorf("failed to persist cache %q: %w", key, err)
	}
	return nil
}

// Load replaces the in-memory cache with whatever is stored under key, if
// present. A missing key is not an error (fresh engine, nothing cached yet).
func (s *Store[T]) Load(cs configstore.Store, key string) error {
	data, ok, err := cs.Get(key)
	if err != nil {
		return fmt.Errorf("failed to load cache %q: %w", key, err)
	}
	if !ok {
		return nil
	}
	var entries map[string]Entry[T]
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal cache %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	return nil
}
