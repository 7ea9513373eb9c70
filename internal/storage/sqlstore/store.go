// Package sqlstore implements storage.Store for MySQL and SQLite on sqlx.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // registers "mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // registers "sqlite"

	"github.com/Sternrassler/swapi-loader/internal/people"
	"github.com/Sternrassler/swapi-loader/internal/storage"
)

// Config holds SQL store configuration.
type Config struct {
	// Driver is "mysql" or "sqlite".
	Driver string
	DSN    string
	Table  string
}

// Store is a database/sql backed storage.Store.
type Store struct {
	db        *sqlx.DB
	dialect   storage.Dialect
	table     string
	insertSQL string
	logger    zerolog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open opens and pings a MySQL or SQLite database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", cfg.Driver, err)
	}

	if cfg.Driver == string(storage.DialectSQLite) {
		// one writer; also keeps a :memory: database on a single connection
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", cfg.Driver, err)
	}

	return New(db, cfg.Table)
}

// New wraps an open database. The dialect follows db.DriverName().
func New(db *sqlx.DB, table string) (*Store, error) {
	dialect := storage.Dialect(db.DriverName())
	if dialect != storage.DialectMySQL && dialect != storage.DialectSQLite {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", db.DriverName())
	}

	if table == "" {
		table = storage.DefaultTable
	}
	if err := storage.ValidateTable(table); err != nil {
		return nil, fmt.Errorf("%s: %w", dialect, err)
	}

	return &Store{
		db:        db,
		dialect:   dialect,
		table:     table,
		insertSQL: insertSQL(dialect, table),
		logger:    log.With().Str("component", "storage").Str("driver", string(dialect)).Logger(),
	}, nil
}

// insertSQL builds a named INSERT binding people.Row by its db tags.
func insertSQL(d storage.Dialect, table string) string {
	cols := make([]string, len(people.Columns))
	params := make([]string, len(people.Columns))
	for i, c := range people.Columns {
		cols[i] = storage.QuoteIdent(d, c)
		params[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		storage.QuoteIdent(d, table), strings.Join(cols, ", "), strings.Join(params, ", "))
}

// EnsureSchema creates the people table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl, err := storage.CreateTableSQL(s.dialect, s.table)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%s: create table %s: %w", s.dialect, s.table, err)
	}
	s.logger.Debug().Str("table", s.table).Msg("Schema ensured")
	return nil
}

// InsertPeople inserts rows in one transaction.
func (s *Store) InsertPeople(ctx context.Context, rows []people.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	err := runInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, s.insertSQL)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range rows {
			if _, err := stmt.ExecContext(ctx, rows[i]); err != nil {
				return fmt.Errorf("insert %q: %w", rows[i].Name, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.dialect, err)
	}

	s.logger.Debug().Int64("rows", inserted).Msg("Rows inserted")
	return inserted, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// runInTx runs fn within a transaction, rolling back when fn fails.
func runInTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
