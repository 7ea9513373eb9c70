package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/swapi-loader/internal/config"
	"github.com/Sternrassler/swapi-loader/internal/storage"
	"github.com/Sternrassler/swapi-loader/internal/storage/postgres"
	"github.com/Sternrassler/swapi-loader/internal/storage/sqlstore"
	"github.com/Sternrassler/swapi-loader/pkg/client"
)

// dependencies are the resources of one run, owned by the command.
type dependencies struct {
	client *client.Client
	store  storage.Store
	redis  *redis.Client
}

func openDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.Redis.CacheEnabled() {
		deps.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := deps.redis.Ping(ctx).Err(); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Response cache enabled")
	}

	c, err := client.New(client.Config{
		BaseURL:   cfg.SWAPI.BaseURL,
		UserAgent: cfg.SWAPI.UserAgent,
		Timeout:   cfg.SWAPI.Timeout,
		Redis:     deps.redis,
		CacheTTL:  cfg.Redis.CacheTTL,
		RateLimit: cfg.SWAPI.RateLimit,
		Burst:     cfg.SWAPI.Burst,
		Retry: client.RetryOverrides{
			MaxAttempts:    cfg.SWAPI.MaxRetries,
			InitialBackoff: cfg.SWAPI.InitialBackoff,
		},
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create SWAPI client: %w", err)
	}
	deps.client = c

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.store = store

	return deps, nil
}

// Close releases every opened resource.
func (d *dependencies) Close() error {
	var errs []error
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.client != nil {
		errs = append(errs, d.client.Close())
	}
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	return errors.Join(errs...)
}

// openStore opens the store for the configured driver.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	log.Debug().Str("driver", cfg.Driver).Str("dsn", cfg.Redacted()).Msg("Opening store")

	switch cfg.Driver {
	case "postgres":
		s, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DSN(), Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return s, nil
	case "mysql", "sqlite":
		s, err := sqlstore.Open(ctx, sqlstore.Config{Driver: cfg.Driver, DSN: cfg.DSN(), Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
