package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestFetchJSONPopulatesAndReuses(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) (interface{}, error) {
		loads++
		return map[string]int{"value": 42}, nil
	}

	key := cache.buildKey(ctx, "dashboard", "answer")
	var first map[string]int
	if err := cache.FetchJSON(ctx, key, &first, loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var second map[string]int
	if err := cache.FetchJSON(ctx, key, &second, loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if loads != 1 {
		t.Fatalf("expected a single load, got %d", loads)
	}
	if second["value"] != 42 {
		t.Fatalf("cached value = %d", second["value"])
	}
}

func TestFetchJSONEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) (interface{}, error) {
		loads++
		return "payload", nil
	}
	key := cache.buildKey(ctx, "dashboard", "expiring")
	var out string
	if err := cache.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := cache.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected reload after TTL, got %d loads", loads)
	}
}

func TestFetchJSONLoaderErrorIsNotCached(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("upstream down")
		}
		return "recovered", nil
	}
	key := cache.buildKey(ctx, "dashboard", "flaky")
	var out string
	if err := cache.FetchJSON(ctx, key, &out, loader); err == nil {
		t.Fatalf("expected loader error")
	}
	if err := cache.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if out != "recovered" {
		t.Fatalf("out = %q", out)
	}
}

func TestFetchJSONSurvivesRedisOutage(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	var out string
	err := cache.FetchJSON(context.Background(), "dashboard:orphan", &out, func(ctx context.Context) (interface{}, error) {
		return "direct", nil
	})
	if err != nil {
		t.Fatalf("redis outage must degrade to the loader: %v", err)
	}
	if out != "direct" {
		t.Fatalf("out = %q", out)
	}
}

func TestNilCacheDelegatesToLoader(t *testing.T) {
	var cache *Cache
	var out int
	err := cache.FetchJSON(context.Background(), "dashboard:nil", &out, func(ctx context.Context) (interface{}, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if out != 7 {
		t.Fatalf("out = %d", out)
	}
	if err := cache.Bump(context.Background()); err != nil {
		t.Fatalf("bump on nil cache: %v", err)
	}
}

func TestBumpChangesKeyVersion(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	before := cache.buildKey(ctx, "dashboard", "companies")
	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	after := cache.buildKey(ctx, "dashboard", "companies")
	if before == after {
		t.Fatalf("bump did not change key version: %s", before)
	}
}

func TestLookupObserverSeesHitAndMiss(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	var mu sync.Mutex
	outcomes := map[string][]string{}
	cache.WithLookupObserver(func(resource, outcome string) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[resource] = append(outcomes[resource], outcome)
	})

	loader := func(ctx context.Context) (interface{}, error) { return 1, nil }
	key := cache.buildKey(ctx, "dashboard", "vehicles", "all")
	var out int
	if err := cache.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := cache.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	got := outcomes["vehicles"]
	if len(got) != 2 || got[0] != "miss" || got[1] != "hit" {
		t.Fatalf("outcomes = %v", got)
	}
}
