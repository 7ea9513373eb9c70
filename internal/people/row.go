package people

import "strings"

// NameSeparator joins resolved display names into one column value.
const NameSeparator = ", "

// Row is one persisted person. ID is the database surrogate key and is
// assigned on insert.
type Row struct {
	ID        int64  `db:"id"`
	BirthYear string `db:"birth_year"`
	EyeColor  string `db:"eye_color"`
	Films     string `db:"films"`
	Gender    string `db:"gender"`
	HairColor string `db:"hair_color"`
	Height    string `db:"height"`
	Homeworld string `db:"homeworld"`
	Mass      string `db:"mass"`
	Name      string `db:"name"`
	SkinColor string `db:"skin_color"`
	Species   string `db:"species"`
	Starships string `db:"starships"`
	Vehicles  string `db:"vehicles"`
}

// Columns are the inserted columns of the people table, matching Values.
var Columns = []string{
	"birth_year", "eye_color", "films", "gender", "hair_color", "height",
	"homeworld", "mass", "name", "skin_color", "species", "starships", "vehicles",
}

// Values returns the row's column values in Columns order.
func (r Row) Values() []any {
	return []any{
		r.BirthYear, r.EyeColor, r.Films, r.Gender, r.HairColor, r.Height,
		r.Homeworld, r.Mass, r.Name, r.SkinColor, r.Species, r.Starships, r.Vehicles,
	}
}

// JoinNames joins display names with NameSeparator. No names give "".
func JoinNames(names []string) string {
	return strings.Join(names, NameSeparator)
}

// BuildRow flattens a record and its resolved references into a row.
func BuildRow(r Record, resolved Resolved) Row {
	return Row{
		BirthYear: r.String("birth_year"),
		EyeColor:  r.String("eye_color"),
		Films:     JoinNames(resolved[FieldFilms]),
		Gender:    r.String("gender"),
		HairColor: r.String("hair_color"),
		Height:    r.String("height"),
		Homeworld: JoinNames(resolved[FieldHomeworld]),
		Mass:      r.String("mass"),
		Name:      r.String("name"),
		SkinColor: r.String("skin_color"),
		Species:   JoinNames(resolved[FieldSpecies]),
		Starships: JoinNames(resolved[FieldStarships]),
		Vehicles:  JoinNames(resolved[FieldVehicles]),
	}
}

// BuildRows builds one row per resolvable record; resolved[i] belongs to
// records[i]. Records that are not resolvable are dropped and counted.
func BuildRows(records []Record, resolved []Resolved) (rows []Row, skipped int) {
	rows = make([]Row, 0, len(records))
	for i, r := range records {
		if !r.Resolvable() {
			skipped++
			continue
		}
		var res Resolved
		if i < len(resolved) {
			res = resolved[i]
		}
		rows = append(rows, BuildRow(r, res))
	}
	return rows, skipped
}
