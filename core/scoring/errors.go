package scoring

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a validation failure.
type Kind uint8

const (
	InvalidNumber Kind = iota + 1
	NegativeValue
	ExceedsMaximum
	MustBePositive
	MustBeNonNegative
)

var kindNames = map[Kind]string{
	InvalidNumber:     "invalid_number",
	NegativeValue:     "negative_value",
	ExceedsMaximum:    "exceeds_maximum",
	MustBePositive:    "must_be_positive",
	MustBeNonNegative: "must_be_non_negative",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Fields validated by this package.
const (
	FieldRawScore       = "raw_score"
	FieldAddedMark      = "added_mark"
	FieldTestMarkedOver = "test_marked_over"
	FieldMaxAddedMark   = "max_added_mark"
)

var fieldLabels = map[string]string{
	FieldRawScore:       "Score",
	FieldAddedMark:      "Added mark",
	FieldTestMarkedOver: "Test Marked Over",
	FieldMaxAddedMark:   "Maximum Added Marks",
}

// Error is a single user-facing validation failure.
// Limit is only meaningful for ExceedsMaximum.
type Error struct {
	Kind  Kind
	Field string
	Limit float64
}

// sentinels for errors.Is
var (
	ErrInvalidNumber     = &Error{Kind: InvalidNumber}
	ErrNegativeValue     = &Error{Kind: NegativeValue}
	ErrExceedsMaximum    = &Error{Kind: ExceedsMaximum}
	ErrMustBePositive    = &Error{Kind: MustBePositive}
	ErrMustBeNonNegative = &Error{Kind: MustBeNonNegative}
)

func (e *Error) Error() string {
	label, ok := fieldLabels[e.Field]
	if !ok {
		label = "Value"
	}
	switch e.Kind {
	case InvalidNumber:
		return "Please enter a valid number"
	case NegativeValue:
		return label + " cannot be negative"
	case ExceedsMaximum:
		return fmt.Sprintf("%s cannot exceed %s", label, FormatNumber(e.Limit))
	case MustBePositive:
		return label + " must be a positive number"
	case MustBeNonNegative:
		return label + " must be a non-negative number"
	}
	return label + " is invalid"
}

// Is matches errors of the same Kind, whatever the field or limit.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Result is the outcome of a validation. It is valid when it holds no errors.
type Result struct {
	Errors []*Error
}

func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns the first error, or nil when the result is valid.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return r.Errors[0]
}

func (r Result) Messages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

// String joins all messages, the way they are shown to users.
func (r Result) String() string {
	return strings.Join(r.Messages(), ", ")
}

func (r *Result) add(kind Kind, field string, limit ...float64) {
	e := &Error{Kind: kind, Field: field}
	if len(limit) > 0 {
		e.Limit = limit[0]
	}
	r.Errors = append(r.Errors, e)
}

// FormatNumber prints n in its shortest form: 100 -> "100", 12.5 -> "12.5".
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
