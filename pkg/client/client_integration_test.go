//go:build integration

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		redisClient.Close()
		redisContainer.Terminate(ctx)
	})

	return redisClient
}

func TestIntegration_CacheServesRepeatedReferences(t *testing.T) {
	redisClient := setupRedisContainer(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"name":"Tatooine"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig(testUserAgent)
	cfg.BaseURL = server.URL + "/api/"
	cfg.Redis = redisClient
	cfg.CacheTTL = time.Minute
	cfg.RateLimit = 0

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	planet := server.URL + "/api/planets/1/"

	first, err := c.Get(ctx, planet)
	if err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	if first.FromCache {
		t.Error("first response should come from upstream")
	}

	for i := 0; i < 5; i++ {
		resp, err := c.Get(ctx, planet)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !resp.FromCache {
			t.Errorf("request %d not served from cache", i)
		}
		if string(resp.Body) != `{"name":"Tatooine"}` {
			t.Errorf("Body = %q", resp.Body)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestIntegration_StaleEntryRevalidated(t *testing.T) {
	redisClient := setupRedisContainer(t)

	var calls, conditional atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Expires", time.Now().Add(time.Second).UTC().Format(http.TimeFormat))
		w.Write([]byte(`{"title":"Return of the Jedi"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig(testUserAgent)
	cfg.BaseURL = server.URL + "/api/"
	cfg.Redis = redisClient
	cfg.RateLimit = 0

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	film := server.URL + "/api/films/3/"

	if _, err := c.Get(ctx, film); err != nil {
		t.Fatalf("first Get() error = %v", err)
	}

	time.Sleep(2 * time.Second)

	resp, err := c.Get(ctx, film)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if !resp.FromCache {
		t.Error("revalidated response should be served from cache")
	}
	if string(resp.Body) != `{"title":"Return of the Jedi"}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if conditional.Load() != 1 {
		t.Errorf("conditional requests = %d, want 1", conditional.Load())
	}
}
