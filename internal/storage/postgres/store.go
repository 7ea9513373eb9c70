// Package postgres implements storage.Store on pgx v5. Each batch is
// written with COPY inside one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/swapi-loader/internal/people"
	"github.com/Sternrassler/swapi-loader/internal/storage"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Config holds Postgres store configuration.
type Config struct {
	DSN   string
	Table string

	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
}

// Store is a Postgres-backed storage.Store.
type Store struct {
	pool   Pool
	table  string
	logger zerolog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects a pool and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return New(pool, cfg.Table)
}

// New wraps an existing pool.
func New(pool Pool, table string) (*Store, error) {
	if table == "" {
		table = storage.DefaultTable
	}
	if err := storage.ValidateTable(table); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return &Store{
		pool:   pool,
		table:  table,
		logger: log.With().Str("component", "storage").Str("driver", "postgres").Logger(),
	}, nil
}

// EnsureSchema creates the people table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl, err := storage.CreateTableSQL(storage.DialectPostgres, s.table)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", s.table, pgDetail(err))
	}
	s.logger.Debug().Str("table", s.table).Msg("Schema ensured")
	return nil
}

// InsertPeople copies rows into the table in one transaction.
func (s *Store) InsertPeople(ctx context.Context, rows []people.Row) (n int64, err error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", pgDetail(err))
	}
	defer func() {
		if err != nil {
			// rollback after a failed commit is a no-op
			_ = tx.Rollback(ctx)
		}
	}()

	n, err = tx.CopyFrom(ctx,
		pgx.Identifier(strings.Split(s.table, ".")),
		people.Columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return rows[i].Values(), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", s.table, pgDetail(err))
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", pgDetail(err))
	}

	s.logger.Debug().Int64("rows", n).Msg("Rows copied")
	return n, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// pgDetail enriches a server error with its detail and SQLSTATE, keeping the
// original error in the chain.
func pgDetail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (detail: %s, sqlstate %s)", err, pgErr.Detail, pgErr.SQLState())
	}
	return err
}
