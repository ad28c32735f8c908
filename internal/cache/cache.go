// Package cache provides the shared TTL cache fronting upstream identity
// lookups. It is an injected component, not a process-wide singleton, so
// tests can construct isolated instances.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTTL bounds the staleness window for cached upstream responses.
const DefaultTTL = 3600 * time.Second

// Key identifies a cached upstream response. Fingerprint is derived from the
// requesting session so cached lookups are never leaked across users; Op
// distinguishes the lookup kinds; Arg is the lookup argument (username or id).
type Key struct {
	Op          string
	Fingerprint string
	Arg         string
}

type entry struct {
	payload  []byte
	inserted time.Time
}

// ResponseCache is a lock-protected mapping from Key to a serialized payload
// with its insertion time. Eviction is time-only: every access sweeps all
// stale entries first. The sweep is O(total entries) per access, which is
// acceptable at this scale but a known limitation for high cardinality.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[Key]entry
}

// New creates a cache with the given TTL. A zero ttl falls back to DefaultTTL.
func New(ttl time.Duration) *ResponseCache {
	return NewWithClock(ttl, clock.New())
}

// NewWithClock creates a cache with an explicit clock, used by tests to
// simulate the passage of time.
func NewWithClock(ttl time.Duration, clk clock.Clock) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[Key]entry),
	}
}

// Get sweeps stale entries, then looks up key and decodes the payload into
// dst. Returns false on a miss.
func (c *ResponseCache) Get(key Key, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.sweep(now)

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(e.payload, dst); err != nil {
		// A payload that no longer decodes is useless; drop it.
		delete(c.entries, key)
		return false
	}
	return true
}

// Put serializes value and stores it under key, unconditionally replacing any
// prior entry. Stale entries are swept first, like every other access.
func (c *ResponseCache) Put(key Key, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.sweep(now)
	c.entries[key] = entry{payload: payload, inserted: now}
	return nil
}

// Len reports the current number of entries. Intended for tests.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweep removes every entry older than the TTL. Callers must hold mu.
func (c *ResponseCache) sweep(now time.Time) {
	for k, e := range c.entries {
		if now.Sub(e.inserted) >= c.ttl {
			delete(c.entries, k)
		}
	}
}
