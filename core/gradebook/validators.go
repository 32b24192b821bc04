package gradebook

import (
	"fmt"
	"unicode/utf8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/scoring"
)

// student name policy
var (
	nameMinLen = 2
	nameMaxLen = 100

	nameRequiredText = "Student name is required"
	nameTooShortText = fmt.Sprintf("Student name must be at least %d characters", nameMinLen)
	nameTooLongText  = fmt.Sprintf("Student name is too long (max %d characters)", nameMaxLen)
)

// ValidateStudentName applies the name policy to an already cleaned name.
func ValidateStudentName(name string) error {
	var msg string
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		msg = nameRequiredText
	case n < nameMinLen:
		msg = nameTooShortText
	case n > nameMaxLen:
		msg = nameTooLongText
	default:
		return nil
	}
	return core.NewValidationError(nil, core.FieldError{Field: "name", Error: msg})
}

// resultToError converts a scoring result into a *core.ValidationError, or nil if valid.
func resultToError(res scoring.Result) error {
	if res.Valid() {
		return nil
	}
	return core.NewValidationError(nil, resultFields(res)...)
}

func resultFields(res scoring.Result) []core.FieldError {
	flds := make([]core.FieldError, 0, len(res.Errors))
	for _, e := range res.Errors {
		flds = append(flds, core.FieldError{Field: e.Field, Error: e.Error()})
	}
	return flds
}
