package a2aclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

// AgentCard is the discovery document an external agent serves at
// <endpoint>/.well-known/agent.json (spec.md §6).
type AgentCard struct {
	Name           string          `json:"name"`
	RunnerType     string          `json:"runnerType"`
	Capabilities   []string        `json:"capabilities"`
	TransportTypes []string        `json:"transportTypes"`
	IOSchema       json.RawMessage `json:"ioSchema"`
}

// DiscoveryClient fetches and caches AgentCards, mirroring pii.CachedLoader's
// Redis-backed cache-or-fall-through shape: a cache miss or Redis error
// falls through to a live fetch rather than failing the discovery call.
type DiscoveryClient struct {
	httpClient *http.Client
	redis      *redis.Client
	ttl        time.Duration
	prefix     string
}

// NewDiscoveryClient builds a DiscoveryClient. ttl <= 0 uses
// config.DefaultDiscoveryCacheTTL (10 minutes per spec.md §6).
func NewDiscoveryClient(httpClient *http.Client, redisClient *redis.Client, ttl time.Duration) *DiscoveryClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = config.DefaultDiscoveryCacheTTL
	}
	return &DiscoveryClient{httpClient: httpClient, redis: redisClient, ttl: ttl, prefix: "a2a:discovery:"}
}

// Discover fetches the AgentCard for endpointURL, a cached copy if still
// fresh, or a live fetch against <endpointURL>/.well-known/agent.json.
func (d *DiscoveryClient) Discover(ctx context.Context, endpointURL string) (AgentCard, error) {
	key := d.prefix + endpointURL

	if d.redis != nil {
		if cached, err := d.redis.Get(ctx, key).Bytes(); err == nil {
			var card AgentCard
			if jsonErr := json.Unmarshal(cached, &card); jsonErr == nil {
				return card, nil
			}
		}
	}

	card, err := d.fetch(ctx, endpointURL)
	if err != nil {
		return AgentCard{}, err
	}

	if d.redis != nil {
		if encoded, err := json.Marshal(card); err == nil {
			if err := d.redis.Set(ctx, key, encoded, d.ttl).Err(); err != nil {
				slog.Warn("a2a discovery cache write failed", "endpoint", endpointURL, "error", err)
			}
		}
	}

	return card, nil
}

func (d *DiscoveryClient) fetch(ctx context.Context, endpointURL string) (AgentCard, error) {
	docURL := strings.TrimSuffix(endpointURL, "/") + "/.well-known/agent.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return AgentCard{}, errs.Wrap(errs.BadRequest, "failed to build discovery request", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return AgentCard{}, errs.Wrap(errs.UpstreamFailure, "discovery fetch failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AgentCard{}, errs.Wrap(errs.Internal, "failed to read discovery response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return AgentCard{}, errs.New(errs.UpstreamFailure, fmt.Sprintf("discovery fetch returned %s", resp.Status))
	}

	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return AgentCard{}, errs.Wrap(errs.UpstreamFailure, "failed to decode discovery document", err)
	}
	return card, nil
}
