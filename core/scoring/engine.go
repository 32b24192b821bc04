// Package scoring validates raw mark inputs and turns them into a bounded, rounded
// final test contribution. It holds no state and performs no I/O.
//
// Calculation:
//
//	adjusted     = raw + added
//	percentage   = adjusted / markedOver
//	contribution = min(percentage * testContribution, testContribution), rounded to 2 decimals
package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultMarkedOver   = 100
	DefaultMaxAddedMark = 20
	DefaultContribution = 10
)

// ParseNumber parses user input. ok is false for blank input.
// err is ErrInvalidNumber for anything that is not a finite number.
func ParseNumber(s string) (n float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	n, err = strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, ErrInvalidNumber
	}
	return n, true, nil
}

// ParseOr parses s, falling back to def when s is blank or not a number.
func ParseOr(s string, def float64) float64 {
	n, ok, err := ParseNumber(s)
	if !ok || err != nil {
		return def
	}
	return n
}

// ValidateRawScore checks a raw test score against the configured denominator.
// Blank input is valid (counted as 0 downstream).
func ValidateRawScore(score string, markedOver float64) Result {
	return validateBounded(score, markedOver, FieldRawScore)
}

// ValidateAddedMark checks a discretionary mark against the configured maximum.
// Blank input is valid.
func ValidateAddedMark(mark string, maxAllowed float64) Result {
	return validateBounded(mark, maxAllowed, FieldAddedMark)
}

// ValidateRawScoreValue is ValidateRawScore for already parsed values.
func ValidateRawScoreValue(score, markedOver float64) Result {
	return validateBoundedValue(score, markedOver, FieldRawScore)
}

// ValidateAddedMarkValue is ValidateAddedMark for already parsed values.
func ValidateAddedMarkValue(mark, maxAllowed float64) Result {
	return validateBoundedValue(mark, maxAllowed, FieldAddedMark)
}

func validateBounded(input string, limit float64, field string) Result {
	n, ok, err := ParseNumber(input)
	if err != nil {
		var res Result
		res.add(InvalidNumber, field)
		return res
	}
	if !ok {
		return Result{}
	}
	return validateBoundedValue(n, limit, field)
}

func validateBoundedValue(n, limit float64, field string) Result {
	var res Result
	switch {
	case math.IsNaN(n) || math.IsInf(n, 0):
		res.add(InvalidNumber, field)
	case n < 0:
		res.add(NegativeValue, field)
	case n > limit:
		res.add(ExceedsMaximum, field, limit)
	}
	return res
}

// ValidateConfiguration checks both configuration values and reports every failure.
func ValidateConfiguration(testMarkedOver, maxAddedMarks string) Result {
	markedOver, ok, err := ParseNumber(testMarkedOver)
	if err != nil || !ok {
		markedOver = math.NaN()
	}
	maxAdded, ok, err := ParseNumber(maxAddedMarks)
	if err != nil || !ok {
		maxAdded = math.NaN()
	}
	return ValidateScoreConfig(markedOver, maxAdded)
}

// ValidateScoreConfig is ValidateConfiguration for already parsed values. NaN counts as missing.
func ValidateScoreConfig(markedOver, maxAdded float64) Result {
	var res Result
	if math.IsNaN(markedOver) || math.IsInf(markedOver, 0) || markedOver <= 0 {
		res.add(MustBePositive, FieldTestMarkedOver)
	}
	if math.IsNaN(maxAdded) || math.IsInf(maxAdded, 0) || maxAdded < 0 {
		res.add(MustBeNonNegative, FieldMaxAddedMark)
	}
	return res
}

// AdjustedScore is raw + added, missing (NaN) values counting as 0.
func AdjustedScore(raw, added float64) float64 {
	return orDefault(raw, 0) + orDefault(added, 0)
}

// FinalContribution computes the weighted contribution of a test, capped at contribution.
// NaN arguments count as missing: raw and added default to 0, markedOver to 100 and
// contribution to 10. A markedOver of 0 yields 0.
// There is no lower bound: negative inputs must be rejected by the validators beforehand.
func FinalContribution(raw, added, markedOver, contribution float64) float64 {
	raw = orDefault(raw, 0)
	added = orDefault(added, 0)
	markedOver = orDefault(markedOver, DefaultMarkedOver)
	contribution = orDefault(contribution, DefaultContribution)

	if markedOver == 0 {
		return 0
	}
	pct := (raw + added) / markedOver
	return Round2(math.Min(pct*contribution, contribution))
}

// FinalContributionFormatted renders FinalContribution as "<value> / <contribution>".
func FinalContributionFormatted(raw, added, markedOver, contribution float64) string {
	contribution = orDefault(contribution, DefaultContribution)
	value := FinalContribution(raw, added, markedOver, contribution)
	return fmt.Sprintf("%.2f / %s", value, FormatNumber(contribution))
}

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(n float64) float64 {
	r := math.Round(n*100) / 100
	if r == 0 {
		return 0 // no "-0.00"
	}
	return r
}

// CheckPercentageTotal sums assessment component weights; ok is false unless they add up to 100.
func CheckPercentageTotal(components ...float64) (total float64, ok bool) {
	for _, c := range components {
		total += orDefault(c, 0)
	}
	total = Round2(total)
	return total, total == 100
}

func orDefault(n, def float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return def
	}
	return n
}
