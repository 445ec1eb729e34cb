// Package cache is the process-local key/value store shared by the route
// rewrite engine, the permalink codec and the id obfuscator.
package cache

import (
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// Wildcard marks a prefix deletion in Delete.
const Wildcard = "*"

// Manager is a bounded LRU store with wildcard deletion and get-or-compute.
// Entries carry no TTL; callers that need expiry store timestamps and
// interpret them.
//
// A single mutex guards the store. Compute functions passed to Get run
// outside it, so they may use the Manager themselves.
type Manager struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, any]

	group   singleflight.Group
	flights map[*flight]struct{}

	hooksMu sync.RWMutex
	hooks   []func(key string)
}

// New creates a Manager holding at most capacity entries.
func New(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 1
	}
	// NewLRU only fails on a non-positive size.
	lru, _ := simplelru.NewLRU[string, any](capacity, nil)
	return &Manager{lru: lru, flights: make(map[*flight]struct{})}
}

// flight is one running compute. A Delete or Clear that matches its key
// marks it stale so the result is returned to its callers but not stored.
type flight struct {
	key   string
	stale bool
}

// Get returns the cached value for key, marking it most recently used.
// On a miss it calls compute, stores the result and evicts the least
// recently used entry if over capacity. Concurrent misses for one key
// share a single compute call. Errors from compute are returned and not
// stored, and neither is a result whose key was deleted while it was
// being computed.
func (m *Manager) Get(key string, compute func() (any, error)) (any, error) {
	m.mu.Lock()
	if v, ok := m.lru.Get(key); ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	if compute == nil {
		return nil, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		f := &flight{key: key}
		m.mu.Lock()
		m.flights[f] = struct{}{}
		m.mu.Unlock()

		v, err := compute()

		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.flights, f)
		if err != nil {
			return nil, err
		}
		if !f.stale {
			m.lru.Add(key, v)
		}
		return v, nil
	})
	return v, err
}

// invalidate marks running computes matching pattern stale and detaches
// them from singleflight, so later Gets start a fresh compute. Callers
// hold m.mu.
func (m *Manager) invalidate(pattern string) {
	for f := range m.flights {
		if !f.stale && Matches(pattern, f.key) {
			f.stale = true
			m.group.Forget(f.key)
		}
	}
}

// Peek returns the value for key without computing or touching recency.
func (m *Manager) Peek(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Peek(key)
}

// Set stores value under key.
func (m *Manager) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Add(key, value)
}

// Delete removes key. When key contains Wildcard, every stored key that
// contains the text before the wildcard is removed (substring match).
// Returns the number of entries removed. Invalidation hooks always run.
func (m *Manager) Delete(key string) int {
	removed := 0

	m.mu.Lock()
	if prefix, _, wild := strings.Cut(key, Wildcard); wild {
		for _, k := range m.lru.Keys() {
			if strings.Contains(k, prefix) {
				m.lru.Remove(k)
				removed++
			}
		}
	} else if m.lru.Remove(key) {
		removed = 1
	}
	m.invalidate(key)
	m.mu.Unlock()

	m.notify(key)
	return removed
}

// Clear removes every entry.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.lru.Purge()
	m.invalidate(Wildcard)
	m.mu.Unlock()

	m.notify(Wildcard)
}

// Len reports the number of stored entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// OnInvalidate registers fn to run after every Delete or Clear with the
// key that was deleted (Wildcard for Clear). Memoization layers in front
// of the store use it to drop their own copies.
func (m *Manager) OnInvalidate(fn func(key string)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) notify(key string) {
	m.hooksMu.RLock()
	hooks := make([]func(string), len(m.hooks))
	copy(hooks, m.hooks)
	m.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(key)
	}
}

// Fetch is a typed Get. A cached value of the wrong type is recomputed.
func Fetch[T any](m *Manager, key string, compute func() (T, error)) (T, error) {
	v, err := m.Get(key, func() (any, error) { return compute() })
	if err != nil {
		var zero T
		return zero, err
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	t, err := compute()
	if err == nil {
		m.Set(key, t)
	}
	return t, err
}

// Matches reports whether a Delete of pattern would remove key.
func Matches(pattern, key string) bool {
	if prefix, _, wild := strings.Cut(pattern, Wildcard); wild {
		return strings.Contains(key, prefix)
	}
	return pattern == key
}
