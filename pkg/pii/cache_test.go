package pii

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCachedLoader_FallsThroughOnRedisError exercises the degrade path
// when the cache is unreachable: the underlying loader must still serve
// the request rather than failing the call.
func TestCachedLoader_FallsThroughOnRedisError(t *testing.T) {
	unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	next := fakeLoader{entries: []DictionaryEntry{{Term: "Acme", Pseudonym: "@abc"}}}

	cached := NewCachedLoader(unreachable, next, 0)
	entries, err := cached.LoadPIIDictionary(context.Background(), "acme", "planner")
	require.NoError(t, err)
	assert.Equal(t, next.entries, entries)
}
