package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "dashboard:version"
	bumpChannel     = "dashboard.bump"

	// DefaultTTL bounds how stale a cached upstream read may be.
	DefaultTTL = 5 * time.Minute
)

// Cache wraps Redis based caching of upstream reads with versioning controls.
// Every method tolerates a nil receiver or client, falling back to the
// loader, so the engine keeps working when Redis is down.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	lookups func(resource, outcome string)
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// WithLookupObserver installs a hit/miss callback, typically backed by a
// Prometheus counter.
func (c *Cache) WithLookupObserver(fn func(resource, outcome string)) *Cache {
	if c != nil {
		c.lookups = fn
	}
	return c
}

// observe reports the lookup outcome for the resource segment of the key
// (keys are "dashboard:<resource>:...").
func (c *Cache) observe(key, outcome string) {
	if c == nil || c.lookups == nil {
		return
	}
	parts := strings.SplitN(key, ":", 3)
	resource := key
	if len(parts) >= 2 {
		resource = parts[1]
	}
	c.lookups(resource, outcome)
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// buildKey composes the cache key with the current version. When the version
// cannot be resolved the unversioned key is used; worst case a bump misses
// entries written in that window and they age out by TTL.
func (c *Cache) buildKey(ctx context.Context, parts ...string) string {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return joined
	}
	return fmt.Sprintf("%s:%d", joined, ver)
}

// FetchJSON loads a cached value or populates it using the loader. Redis
// failures on either side are treated as a miss: the cache is best effort
// and never the reason a dashboard fails to load.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			if err := json.Unmarshal(payload, dest); err == nil {
				c.observe(key, "hit")
				return nil
			}
		}
	}
	c.observe(key, "miss")
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the cache by incrementing the global version and
// publishing the new value for other replicas.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications published by
// other replicas and keeps the local version in sync.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = bumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != "" {
					if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
						_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
						continue
					}
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

func keyCompany(id int64) string {
	return strings.Join([]string{"dashboard", "company", strconv.FormatInt(id, 10)}, ":")
}

func keyVehicles(scopeToken string) string {
	return strings.Join([]string{"dashboard", "vehicles", scopeToken}, ":")
}

// Bookings are fetched globally and joined to companies locally, so the key
// deliberately carries no scope.
func keyBookings(rng DateRange) string {
	return strings.Join([]string{"dashboard", "bookings", rng.Start.Format(dateLayout), rng.End.Format(dateLayout)}, ":")
}

func keyCompanies() string {
	return "dashboard:companies"
}

func keyStatusCounts(scopeToken string) string {
	return strings.Join([]string{"dashboard", "status", scopeToken}, ":")
}

func keyRouteCounts(scopeToken string) string {
	return strings.Join([]string{"dashboard", "routes", scopeToken}, ":")
}

func keyRevenueSeries(scopeToken string, rng DateRange, granularity string) string {
	return strings.Join([]string{"dashboard", "series", scopeToken, rng.Start.Format(dateLayout), rng.End.Format(dateLayout), granularity}, ":")
}
