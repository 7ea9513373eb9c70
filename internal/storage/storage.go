// Package storage defines the people store and the table layout shared by
// the Postgres, MySQL and SQLite implementations.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Sternrassler/swapi-loader/internal/people"
)

// DefaultTable is the people table name.
const DefaultTable = "swapi_people"

//go:generate mockgen -source=storage.go -destination=../mocks/storage/mock_storage.go -package=mock_storage

// Store persists people rows. Implementations are safe for concurrent use.
type Store interface {
	// EnsureSchema creates the people table if it does not exist.
	EnsureSchema(ctx context.Context) error

	// InsertPeople appends rows in a single transaction and returns the
	// number of rows written. Either every row commits or none does.
	InsertPeople(ctx context.Context, rows []people.Row) (int64, error)

	// Close releases the underlying connections.
	Close() error
}

// Dialect selects identifier quoting and column types.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTable checks that name is a plain or schema-qualified identifier.
func ValidateTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// QuoteIdent quotes a possibly schema-qualified identifier for the dialect.
func QuoteIdent(d Dialect, name string) string {
	q := `"`
	if d == DialectMySQL {
		q = "`"
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// CreateTableSQL returns the idempotent CREATE TABLE statement for the
// people table: a surrogate key plus one text column per people.Columns.
func CreateTableSQL(d Dialect, table string) (string, error) {
	if err := ValidateTable(table); err != nil {
		return "", err
	}

	var idCol, colType string
	switch d {
	case DialectPostgres:
		idCol, colType = "id SERIAL PRIMARY KEY", "VARCHAR"
	case DialectMySQL:
		idCol, colType = "id BIGINT AUTO_INCREMENT PRIMARY KEY", "TEXT"
	case DialectSQLite:
		idCol, colType = "id INTEGER PRIMARY KEY AUTOINCREMENT", "TEXT"
	default:
		return "", fmt.Errorf("unsupported dialect %q", d)
	}

	cols := make([]string, 0, len(people.Columns)+1)
	cols = append(cols, idCol)
	for _, c := range people.Columns {
		cols = append(cols, QuoteIdent(d, c)+" "+colType)
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		QuoteIdent(d, table),
		strings.Join(cols, ",\n  "),
	), nil
}
