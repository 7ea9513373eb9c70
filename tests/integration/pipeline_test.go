//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/swapi-loader/internal/pipeline"
	"github.com/Sternrassler/swapi-loader/internal/storage/postgres"
	"github.com/Sternrassler/swapi-loader/internal/testutil"
	"github.com/Sternrassler/swapi-loader/pkg/client"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})

	return redisClient
}

// setupPostgres creates a Postgres container and returns its DSN.
func setupPostgres(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_DB":       "swapi",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return fmt.Sprintf("postgres://postgres:secret@%s:%s/swapi?sslmode=disable", host, port.Port())
}

// seed serves Luke and Darth Vader, who share Tatooine and both films.
func seed(mock *testutil.MockSWAPI) {
	mock.SeedLuke()
	mock.AddPerson(4, testutil.Person{
		Name:      "Darth Vader",
		Homeworld: 1,
		Films:     []int{1, 2},
		Starships: []int{12},
	})
}

// TestFullLoad runs the whole pipeline twice: Fetch → Resolve → Postgres,
// with the second run answered from the Redis cache.
func TestFullLoad(t *testing.T) {
	redisClient := setupRedis(t)
	dsn := setupPostgres(t)

	mock := testutil.NewMockSWAPI()
	defer mock.Close()
	seed(mock)

	ctx := context.Background()

	c, err := client.New(client.Config{
		BaseURL:   mock.BaseURL(),
		UserAgent: "swapi-loader-integration/1.0",
		Redis:     redisClient,
		CacheTTL:  time.Hour,
		Retry:     client.RetryOverrides{MaxAttempts: 2, InitialBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	store, err := postgres.Open(ctx, postgres.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	cfg := pipeline.DefaultConfig()
	cfg.StartID = 0
	cfg.EndID = 6
	cfg.BatchSize = 2

	// Run 1: every resource comes from upstream
	t.Log("Run 1: cold cache")
	summary, err := pipeline.New(c, store, cfg, zerolog.Nop()).Run(ctx)
	if err != nil {
		t.Fatalf("Run 1 failed: %v", err)
	}
	if summary.Stored != 2 {
		t.Errorf("Run 1 stored = %d, want 2", summary.Stored)
	}
	if summary.Skipped != 4 {
		t.Errorf("Run 1 skipped = %d, want 4", summary.Skipped)
	}
	if got := mock.KindCount("people"); got != 6 {
		t.Errorf("Run 1 people requests = %d, want 6", got)
	}
	// Vader's batch reuses Luke's cached film and planet responses
	if got := mock.KindCount("planets"); got != 1 {
		t.Errorf("Run 1 planet requests = %d, want 1", got)
	}
	if got := mock.KindCount("films"); got != 2 {
		t.Errorf("Run 1 film requests = %d, want 2", got)
	}

	filmsBefore := mock.KindCount("films")
	peopleBefore := mock.KindCount("people")

	// Run 2: successful responses are cached, only the 404s go upstream
	t.Log("Run 2: warm cache")
	summary, err = pipeline.New(c, store, cfg, zerolog.Nop()).Run(ctx)
	if err != nil {
		t.Fatalf("Run 2 failed: %v", err)
	}
	if summary.Stored != 2 {
		t.Errorf("Run 2 stored = %d, want 2", summary.Stored)
	}
	if got := mock.KindCount("films"); got != filmsBefore {
		t.Errorf("Run 2 film requests = %d, want %d (cached)", got-filmsBefore, 0)
	}
	if got := mock.KindCount("people") - peopleBefore; got != 4 {
		t.Errorf("Run 2 people requests = %d, want 4 (only missing ids)", got)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM swapi_people`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 4 {
		t.Errorf("rows = %d, want 4 (re-runs append)", count)
	}

	var films, homeworld, vehicles string
	err = pool.QueryRow(ctx,
		`SELECT films, homeworld, vehicles FROM swapi_people WHERE name = 'Darth Vader' LIMIT 1`,
	).Scan(&films, &homeworld, &vehicles)
	if err != nil {
		t.Fatalf("select Vader: %v", err)
	}
	if films != "A New Hope, The Empire Strikes Back" {
		t.Errorf("films = %q", films)
	}
	if homeworld != "Tatooine" {
		t.Errorf("homeworld = %q", homeworld)
	}
	if vehicles != "" {
		t.Errorf("vehicles = %q, want empty string", vehicles)
	}
}
