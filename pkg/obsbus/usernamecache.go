package obsbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// usernameCache is an in-process, size- and TTL-bounded userId→displayName
// cache (spec.md §4.5: size U, TTL 30 min). A cache miss never blocks
// delivery: lookup returns ok=false immediately and kicks off an
// asynchronous resolve that populates the cache for subsequent events.
//
// Grounded on the same fail-open shape as pii.CachedLoader, but in-process
// rather than Redis-backed — the teacher's retrieved snapshot has no
// identity/directory client to ground a Redis round trip per miss on, and
// the enrichment path must not add latency to the hot Push/Emit call.
type usernameCache struct {
	resolver UsernameResolver
	ttl      time.Duration
	size     int

	mu      sync.Mutex
	entries map[string]cacheEntry
	inFlight map[string]bool
}

type cacheEntry struct {
	name    string
	expires time.Time
}

func newUsernameCache(resolver UsernameResolver, size int, ttl time.Duration) *usernameCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &usernameCache{
		resolver: resolver,
		ttl:      ttl,
		size:     size,
		entries:  make(map[string]cacheEntry),
		inFlight: make(map[string]bool),
	}
}

// lookup returns the cached display name for userID, if present and not
// expired. On a miss it schedules an asynchronous resolve (at most one in
// flight per userID at a time) and returns ok=false without waiting.
func (c *usernameCache) lookup(ctx context.Context, userID string) (string, bool) {
	if userID == "" {
		return "", false
	}

	c.mu.Lock()
	entry, ok := c.entries[userID]
	if ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.name, true
	}
	if ok {
		delete(c.entries, userID)
	}
	alreadyResolving := c.inFlight[userID]
	if !alreadyResolving {
		c.inFlight[userID] = true
	}
	c.mu.Unlock()

	if !alreadyResolving {
		go c.resolve(userID)
	}
	return "", false
}

func (c *usernameCache) resolve(userID string) {
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, userID)
		c.mu.Unlock()
	}()

	resolveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name, err := c.resolver.ResolveDisplayName(resolveCtx, userID)
	if err != nil {
		slog.Warn("username enrichment failed", "userId", userID, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.size {
		c.evictOneLocked()
	}
	c.entries[userID] = cacheEntry{name: name, expires: time.Now().Add(c.ttl)}
}

// evictOneLocked drops an arbitrary entry to keep the cache under its size
// bound. Map iteration order is randomized in Go, which is an acceptable
// stand-in for a real LRU here: this is a soft display-name accelerator,
// not a correctness-bearing cache.
func (c *usernameCache) evictOneLocked() {
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}
