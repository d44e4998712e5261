package a2aclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryClient_FetchesAndDecodesAgentCard(t *testing.T) {
	rt := &fakeRoundTripper{status: 200, body: `{"name":"researcher","runnerType":"external","capabilities":["search"],"transportTypes":["converse","plan"]}`}
	d := NewDiscoveryClient(&http.Client{Transport: rt}, nil, 0)

	card, err := d.Discover(context.Background(), "https://partner.example.com")

	require.NoError(t, err)
	assert.Equal(t, "researcher", card.Name)
	assert.Equal(t, []string{"converse", "plan"}, card.TransportTypes)
	assert.Contains(t, rt.gotReq.URL.String(), "/.well-known/agent.json")
}

func TestDiscoveryClient_FallsThroughOnRedisError(t *testing.T) {
	unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	rt := &fakeRoundTripper{status: 200, body: `{"name":"researcher"}`}
	d := NewDiscoveryClient(&http.Client{Transport: rt}, unreachable, 0)

	card, err := d.Discover(context.Background(), "https://partner.example.com")

	require.NoError(t, err)
	assert.Equal(t, "researcher", card.Name)
}

func TestDiscoveryClient_NonOKStatusIsUpstreamFailure(t *testing.T) {
	rt := &fakeRoundTripper{status: 404, body: "not found"}
	d := NewDiscoveryClient(&http.Client{Transport: rt}, nil, 0)

	_, err := d.Discover(context.Background(), "https://partner.example.com")

	require.Error(t, err)
}
