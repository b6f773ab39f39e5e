package coord

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	testcontainers "github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

// startRedisStore spins up a throwaway redis container and connects a store
// to it. Skips when no container runtime is reachable. Teardown is hooked on
// t.Cleanup; pool sizing and retry settings ride on the config defaults.
func startRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	func() {
		// SkipIfProviderIsNotHealthy is documented to skip when Docker is
		// unavailable, but in testcontainers v0.34 it panics instead when no
		// Docker host can be resolved at all; translate that into the skip.
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("no container runtime available: %v", r)
			}
		}()
		testcontainers.SkipIfProviderIsNotHealthy(t)
	}()

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7.2-alpine")
	if err != nil {
		t.Skipf("starting redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	u, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("parsing connection string %q: %v", uri, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing port from %q: %v", uri, err)
	}

	store, err := NewRedisStore(&RedisConfig{Host: u.Hostname(), Port: port})
	if err != nil {
		t.Fatalf("NewRedisStore() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
