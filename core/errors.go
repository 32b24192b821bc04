package core

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, fld := range err.Fields {
		msgs = append(msgs, fld.Field+": "+fld.Error)
	}
	return strings.Join(msgs, ", ")
}

// FieldMap groups field messages by field name. Several messages for one field are joined.
func (err ValidationError) FieldMap() map[string]string {
	fields := make(map[string]string, len(err.Fields))
	for _, fld := range err.Fields {
		if prev, ok := fields[fld.Field]; ok {
			fields[fld.Field] = prev + ", " + fld.Error
			continue
		}
		fields[fld.Field] = fld.Error
	}
	return fields
}

// IsValidationError reports whether the cause of err is a *ValidationError.
func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
