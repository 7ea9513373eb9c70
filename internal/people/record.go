// Package people holds the character record as fetched from SWAPI and the
// flattened row it is persisted as.
package people

import (
	"fmt"
	"strconv"
)

// Reference fields of a person, in processing order.
const (
	FieldFilms     = "films"
	FieldHomeworld = "homeworld"
	FieldSpecies   = "species"
	FieldStarships = "starships"
	FieldVehicles  = "vehicles"
)

// ReferenceFields lists the URL-valued fields that are resolved to names.
var ReferenceFields = []string{FieldFilms, FieldHomeworld, FieldSpecies, FieldStarships, FieldVehicles}

// DisplayKey returns the property holding the display name of a resource
// referenced by field: "title" for films, "name" for everything else.
func DisplayKey(field string) string {
	if field == FieldFilms {
		return "title"
	}
	return "name"
}

// Record is a decoded SWAPI object. Values are strings, a single reference
// URL or a list of reference URLs, exactly as the upstream sends them.
type Record map[string]any

// Resolvable reports whether the record is a real resource. The upstream
// answers unknown ids with a one-field body such as {"detail":"Not found"}.
func (r Record) Resolvable() bool {
	return len(r) > 1
}

// String returns the value of key as a string. Missing and null values give "".
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// References returns the reference URLs of field in list order. homeworld
// holds a single URL; an absent or empty one yields no reference.
func (r Record) References(field string) []string {
	switch v := r[field].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		urls := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				urls = append(urls, s)
			}
		}
		return urls
	default:
		return nil
	}
}

// Resolved maps a reference field to the display names of its references,
// in the order of the record's URLs.
type Resolved map[string][]string
