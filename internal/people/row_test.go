package people

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lukeRecord() Record {
	return Record{
		"name":       "Luke Skywalker",
		"height":     "172",
		"mass":       "77",
		"hair_color": "blond",
		"skin_color": "fair",
		"eye_color":  "blue",
		"birth_year": "19BBY",
		"gender":     "male",
		"homeworld":  "https://swapi.dev/api/planets/1/",
		"films":      []any{"https://swapi.dev/api/films/1/", "https://swapi.dev/api/films/2/"},
		"species":    []any{},
		"vehicles":   []any{"https://swapi.dev/api/vehicles/14/", "https://swapi.dev/api/vehicles/30/"},
		"starships":  []any{"https://swapi.dev/api/starships/12/"},
	}
}

func TestJoinNames(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected string
	}{
		{"nil list", nil, ""},
		{"empty list", []string{}, ""},
		{"single", []string{"Tatooine"}, "Tatooine"},
		{"two", []string{"A New Hope", "The Empire Strikes Back"}, "A New Hope, The Empire Strikes Back"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, JoinNames(tt.input))
		})
	}
}

func TestBuildRow_Luke(t *testing.T) {
	row := BuildRow(lukeRecord(), Resolved{
		FieldFilms:     {"A New Hope", "The Empire Strikes Back"},
		FieldHomeworld: {"Tatooine"},
		FieldSpecies:   {},
		FieldStarships: {"X-wing"},
		FieldVehicles:  {"Snowspeeder", "Imperial Speeder Bike"},
	})

	assert.Equal(t, Row{
		BirthYear: "19BBY",
		EyeColor:  "blue",
		Films:     "A New Hope, The Empire Strikes Back",
		Gender:    "male",
		HairColor: "blond",
		Height:    "172",
		Homeworld: "Tatooine",
		Mass:      "77",
		Name:      "Luke Skywalker",
		SkinColor: "fair",
		Species:   "",
		Starships: "X-wing",
		Vehicles:  "Snowspeeder, Imperial Speeder Bike",
	}, row)
}

func TestBuildRow_UnresolvedFieldsAreEmpty(t *testing.T) {
	row := BuildRow(Record{"name": "IG-88", "height": "200"}, nil)

	assert.Equal(t, "IG-88", row.Name)
	for i, v := range row.Values() {
		if Columns[i] == "name" || Columns[i] == "height" {
			continue
		}
		assert.Equal(t, "", v, "column %s", Columns[i])
	}
}

func TestBuildRows_DropsSingleFieldRecords(t *testing.T) {
	records := []Record{
		{"detail": "Not found"},
		lukeRecord(),
		{"detail": "Not found"},
	}
	resolved := []Resolved{nil, {FieldHomeworld: {"Tatooine"}}, nil}

	rows, skipped := BuildRows(records, resolved)

	require.Len(t, rows, 1)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, "Luke Skywalker", rows[0].Name)
	assert.Equal(t, "Tatooine", rows[0].Homeworld)
}

func TestBuildRows_Empty(t *testing.T) {
	rows, skipped := BuildRows(nil, nil)
	assert.Empty(t, rows)
	assert.Zero(t, skipped)
}

func TestRow_ValuesMatchColumns(t *testing.T) {
	row := BuildRow(lukeRecord(), nil)
	values := row.Values()

	require.Len(t, values, len(Columns))
	byColumn := make(map[string]any, len(Columns))
	for i, c := range Columns {
		byColumn[c] = values[i]
	}
	assert.Equal(t, "Luke Skywalker", byColumn["name"])
	assert.Equal(t, "19BBY", byColumn["birth_year"])
	assert.Equal(t, "fair", byColumn["skin_color"])
}
