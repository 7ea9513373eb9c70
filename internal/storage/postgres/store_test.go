package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/swapi-loader/internal/people"
)

type fakeTx struct {
	pgx.Tx // unimplemented methods panic

	copyErr    error
	commitErr  error
	table      pgx.Identifier
	columns    []string
	rows       [][]any
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	tx.table = table
	tx.columns = columns
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		tx.rows = append(tx.rows, values)
	}
	if tx.copyErr != nil {
		return 0, tx.copyErr
	}
	return int64(len(tx.rows)), nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.rolledBack = true
	return nil
}

type fakePool struct {
	execSQL  []string
	execErr  error
	beginErr error
	tx       *fakeTx
	closed   bool
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), p.execErr
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

func (p *fakePool) Close() { p.closed = true }

func testRows() []people.Row {
	return []people.Row{
		{Name: "Luke Skywalker", Homeworld: "Tatooine", Films: "A New Hope, The Empire Strikes Back"},
		{Name: "C-3PO", Homeworld: "Tatooine", Species: "Droid"},
	}
}

func TestNew_Table(t *testing.T) {
	s, err := New(&fakePool{}, "")
	require.NoError(t, err)
	assert.Equal(t, "swapi_people", s.table)

	_, err = New(&fakePool{}, "people; --")
	assert.ErrorContains(t, err, "invalid table name")
}

func TestEnsureSchema(t *testing.T) {
	pool := &fakePool{}
	s, err := New(pool, "swapi_people")
	require.NoError(t, err)

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.Len(t, pool.execSQL, 1)
	assert.True(t, strings.HasPrefix(pool.execSQL[0], `CREATE TABLE IF NOT EXISTS "swapi_people"`))
}

func TestEnsureSchema_PgErrorDetail(t *testing.T) {
	pool := &fakePool{execErr: &pgconn.PgError{Code: "42501", Message: "permission denied", Detail: "role loader lacks CREATE"}}
	s, err := New(pool, "swapi_people")
	require.NoError(t, err)

	err = s.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role loader lacks CREATE")
	assert.Contains(t, err.Error(), "42501")

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
}

func TestInsertPeople(t *testing.T) {
	tx := &fakeTx{}
	s, err := New(&fakePool{tx: tx}, "public.swapi_people")
	require.NoError(t, err)

	n, err := s.InsertPeople(context.Background(), testRows())
	require.NoError(t, err)

	assert.Equal(t, int64(2), n)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.Equal(t, pgx.Identifier{"public", "swapi_people"}, tx.table)
	assert.Equal(t, people.Columns, tx.columns)
	require.Len(t, tx.rows, 2)
	assert.Equal(t, testRows()[0].Values(), tx.rows[0])
}

func TestInsertPeople_Empty(t *testing.T) {
	pool := &fakePool{beginErr: errors.New("must not begin")}
	s, err := New(pool, "")
	require.NoError(t, err)

	n, err := s.InsertPeople(context.Background(), nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertPeople_CopyFailsRollsBack(t *testing.T) {
	tx := &fakeTx{copyErr: &pgconn.PgError{Code: "22001", Message: "value too long", Detail: "column name"}}
	s, err := New(&fakePool{tx: tx}, "")
	require.NoError(t, err)

	n, err := s.InsertPeople(context.Background(), testRows())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "copy into swapi_people")
	assert.Contains(t, err.Error(), "22001")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestInsertPeople_CommitFails(t *testing.T) {
	tx := &fakeTx{commitErr: errors.New("connection reset")}
	s, err := New(&fakePool{tx: tx}, "")
	require.NoError(t, err)

	_, err = s.InsertPeople(context.Background(), testRows())
	assert.ErrorContains(t, err, "postgres: commit")
	assert.True(t, tx.rolledBack)
}

func TestInsertPeople_BeginFails(t *testing.T) {
	s, err := New(&fakePool{beginErr: errors.New("pool closed")}, "")
	require.NoError(t, err)

	_, err = s.InsertPeople(context.Background(), testRows())
	assert.ErrorContains(t, err, "postgres: begin: pool closed")
}

func TestClose(t *testing.T) {
	pool := &fakePool{}
	s, err := New(pool, "")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.True(t, pool.closed)
}
