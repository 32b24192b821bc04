package gradebook

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/scoring"
)

// minimum QuickRatio for a name to be suggested
const suggestMinRatio = .6

// ImportReport summarizes a marks import.
type ImportReport struct {
	Matched int           `json:"matched"`
	Created []Student     `json:"created"`
	Unknown []UnknownName `json:"unknown"`
	Skipped int           `json:"skipped"` // rows without a usable name
}

// UnknownName is a name of the file that matches no student of the class.
type UnknownName struct {
	Name       string `json:"name"`
	Suggestion string `json:"suggestion,omitempty"` // closest student name, if any is close enough
}

// importColumns holds header indexes; -1 when absent.
type importColumns struct {
	name, raw, added int
}

type importedRow struct {
	name  string
	raw   null.Float64
	added null.Float64
}

// matchColumns finds the name, raw score and added mark columns of a marks file header.
// Header names are matched case-insensitively and loosely, the way spreadsheets name them.
func matchColumns(header []string) (importColumns, error) {
	var cols importColumns
	if cols.name = findColumn(header, func(h string) bool { return contains(h, "name") }); cols.name < 0 {
		return cols, core.NewValidationError(ErrNoNameColumn)
	}
	cols.raw = findColumn(header, func(h string) bool {
		return contains(h, "raw") || (contains(h, "test") && !contains(h, "contribution")) || h == "score"
	}, cols.name)
	cols.added = findColumn(header, func(h string) bool {
		return contains(h, "added", "exam", "bonus", "ass", "class", "20")
	}, cols.name, cols.raw)
	return cols, nil
}

// parseMarkRecords reads the rows of a marks file. Values are clamped to the caps of conf;
// unparsable and negative values are left out.
func parseMarkRecords(records [][]string, conf ScoreConfig) ([]importedRow, int, error) {
	if len(records) == 0 {
		return nil, 0, core.NewValidationError(ErrNoNameColumn)
	}
	cols, err := matchColumns(records[0])
	if err != nil {
		return nil, 0, err
	}

	var skipped int
	rows := make([]importedRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		name := core.CleanString(cell(rec, cols.name))
		if name == "" {
			skipped++
			continue
		}
		rows = append(rows, importedRow{
			name:  name,
			raw:   clampedValue(cell(rec, cols.raw), conf.TestMarkedOver),
			added: clampedValue(cell(rec, cols.added), conf.MaxAddedMark),
		})
	}
	return rows, skipped, nil
}

func clampedValue(s string, limit float64) null.Float64 {
	n, ok, err := scoring.ParseNumber(s)
	if !ok || err != nil || n < 0 {
		return null.Float64{}
	}
	return null.Float64From(math.Min(n, limit))
}

// suggestName returns the closest of names to name, or "" if none is close enough.
func suggestName(name string, names []string) string {
	var (
		best      string
		bestRatio float64
	)
	target := strings.Split(nameKey(name), "")
	for _, candidate := range names {
		ratio := difflib.NewMatcher(target, strings.Split(nameKey(candidate), "")).QuickRatio()
		if ratio >= suggestMinRatio && ratio > bestRatio {
			best, bestRatio = candidate, ratio
		}
	}
	return best
}

// findColumn returns the index of the first header matching, skipping the taken indexes.
func findColumn(header []string, match func(h string) bool, taken ...int) int {
outer:
	for i, h := range header {
		for _, t := range taken {
			if i == t {
				continue outer
			}
		}
		if match(strings.ToLower(strings.Trim(strings.TrimSpace(h), `"`))) {
			return i
		}
	}
	return -1
}

// contains reports whether s contains any of subs.
func contains(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}
