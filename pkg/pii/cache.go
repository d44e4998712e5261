package pii

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedLoader wraps a DictionaryLoader with a Redis-backed TTL cache keyed
// by (orgSlug, agentSlug), avoiding a store round trip on every
// Pseudonymize call. A cache miss or Redis error falls through to the
// underlying loader rather than failing — Redis here is an accelerator,
// not a dependency the pipeline's correctness relies on.
type CachedLoader struct {
	client *redis.Client
	next   DictionaryLoader
	ttl    time.Duration
	prefix string
}

// NewCachedLoader wraps next with a Redis cache. ttl <= 0 uses 5 minutes,
// matching config.DefaultDictionaryCacheTTL.
func NewCachedLoader(client *redis.Client, next DictionaryLoader, ttl time.Duration) *CachedLoader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLoader{client: client, next: next, ttl: ttl, prefix: "pii:dict:"}
}

func (c *CachedLoader) cacheKey(orgSlug, agentSlug string) string {
	return c.prefix + orgSlug + ":" + agentSlug
}

// LoadPIIDictionary implements DictionaryLoader.
func (c *CachedLoader) LoadPIIDictionary(ctx context.Context, orgSlug, agentSlug string) ([]DictionaryEntry, error) {
	key := c.cacheKey(orgSlug, agentSlug)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var entries []DictionaryEntry
		if jsonErr := json.Unmarshal(cached, &entries); jsonErr == nil {
			return entries, nil
		}
	}

	entries, err := c.next.LoadPIIDictionary(ctx, orgSlug, agentSlug)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(entries); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			slog.Warn("PII dictionary cache write failed", "org", orgSlug, "agent", agentSlug, "error", err)
		}
	}

	return entries, nil
}
