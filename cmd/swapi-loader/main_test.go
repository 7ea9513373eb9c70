package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/swapi-loader/internal/config"
	"github.com/Sternrassler/swapi-loader/internal/pipeline"
	"github.com/Sternrassler/swapi-loader/internal/testutil"
)

// writeConfig writes a YAML config pointing at the mock upstream and a
// SQLite file, and returns the config and database paths.
func writeConfig(t *testing.T, baseURL string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "swapi.db")
	cfgPath := filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`swapi:
  base_url: %s
  rate_limit: 0
  max_retries: 1
  initial_backoff: 1ms
run:
  start_id: 0
  end_id: 3
database:
  driver: sqlite
  path: %s
log:
  level: error
`, baseURL, dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	// keep the command away from a stray .env or config.yaml
	chdir(t, dir)

	return cfgPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type storedPerson struct {
	Name      string `db:"name"`
	Films     string `db:"films"`
	Homeworld string `db:"homeworld"`
	Species   string `db:"species"`
	Starships string `db:"starships"`
	Vehicles  string `db:"vehicles"`
}

func storedPeople(t *testing.T, dbPath string) []storedPerson {
	t.Helper()

	db, err := sqlx.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var people []storedPerson
	require.NoError(t, db.Select(&people,
		"SELECT name, films, homeworld, species, starships, vehicles FROM swapi_people ORDER BY id"))
	return people
}

func TestRootCommand_LoadsIntoSQLite(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()
	mock.SeedLuke()

	cfgPath, dbPath := writeConfig(t, mock.BaseURL())

	out, err := execute(t, "--config", cfgPath)
	require.NoError(t, err)

	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "stored: 1")
	assert.Contains(t, out, "skipped: 2")
	assert.Contains(t, out, "elapsed:")

	got := storedPeople(t, dbPath)
	require.Len(t, got, 1)
	assert.Equal(t, storedPerson{
		Name:      "Luke Skywalker",
		Films:     "A New Hope, The Empire Strikes Back",
		Homeworld: "Tatooine",
		Species:   "",
		Starships: "X-wing",
		Vehicles:  "Snowspeeder, Imperial Speeder Bike",
	}, got[0])

	for id := 0; id < 3; id++ {
		assert.Equal(t, 1, mock.PathCount(testutil.ResourcePath("people", id)), "people/%d", id)
	}
}

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()
	mock.SeedLuke()

	cfgPath, dbPath := writeConfig(t, mock.BaseURL())

	out, err := execute(t, "--config", cfgPath, "--start", "1", "--end", "2", "--batch-size", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "batches: 1")

	assert.Equal(t, 1, mock.KindCount("people"))
	assert.Len(t, storedPeople(t, dbPath), 1)
}

func TestRootCommand_ReRunAppends(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()
	mock.SeedLuke()

	cfgPath, dbPath := writeConfig(t, mock.BaseURL())

	_, err := execute(t, "--config", cfgPath)
	require.NoError(t, err)
	_, err = execute(t, "--config", cfgPath)
	require.NoError(t, err)

	got := storedPeople(t, dbPath)
	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
}

func TestRootCommand_UpstreamFailure(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()
	mock.SeedLuke()
	mock.SetResponse(testutil.ResourcePath("people", 2), testutil.NewServerErrorResponse())

	cfgPath, dbPath := writeConfig(t, mock.BaseURL())

	out, err := execute(t, "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, out, "FAILED")

	// batches before the failing id stay committed
	assert.Len(t, storedPeople(t, dbPath), 1)
}

func TestRootCommand_InvalidRange(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	cfgPath, _ := writeConfig(t, mock.BaseURL())

	_, err := execute(t, "--config", cfgPath, "--start", "5", "--end", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run.end_id")
	assert.Zero(t, mock.RequestCount())
}

func TestRootCommand_RejectsArguments(t *testing.T) {
	_, err := execute(t, "people")
	assert.Error(t, err)
}

func TestSchemaCommand(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	cfgPath, dbPath := writeConfig(t, mock.BaseURL())

	out, err := execute(t, "schema", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Table swapi_people ready")

	assert.Empty(t, storedPeople(t, dbPath))
	assert.Zero(t, mock.RequestCount())
}

func TestOpenStore_UnsupportedDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, `unsupported database driver "oracle"`)
}

func TestPrintSummary(t *testing.T) {
	tests := []struct {
		name    string
		summary pipeline.Summary
		err     error
		want    []string
		notWant []string
	}{
		{
			name:    "success",
			summary: pipeline.Summary{Batches: 100, Fetched: 100, Stored: 82, Skipped: 18, Elapsed: 1500 * time.Millisecond},
			want:    []string{"OK run r1", "batches: 100", "stored: 82", "skipped: 18", "elapsed: 1.5s"},
			notWant: []string{"failed inserts"},
		},
		{
			name:    "failed inserts",
			summary: pipeline.Summary{Batches: 2, Fetched: 2, Stored: 1, FailedInserts: 1},
			err:     errors.New("insert batch [1,2): boom"),
			want:    []string{"FAILED run r1", "failed inserts: 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			printSummary(buf, "r1", tt.summary, tt.err)

			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
