package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrderings drops the orderings whose field is not one of `allowed`.
// Field names are compared case-insensitively and lowered.
func CleanOrderings(ords []DBOrdering, allowed ...string) []DBOrdering {
	cleaned := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		field := CleanString(ord.Field, true /* lower */)
		for _, a := range allowed {
			if field == a {
				cleaned = append(cleaned, DBOrdering{Field: field, Ascending: ord.Ascending})
				break
			}
		}
	}
	return cleaned
}

// OrderByClause renders orderings as an SQL ORDER BY clause, or `fallback` if there are none.
func OrderByClause(ords []DBOrdering, fallback string) string {
	if len(ords) == 0 {
		return "ORDER BY " + fallback
	}
	parts := make([]string, 0, len(ords))
	for _, ord := range ords {
		parts = append(parts, ord.String())
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}
