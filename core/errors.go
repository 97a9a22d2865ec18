package core

import "github.com/pkg/errors"

// FieldError ties a validation failure to the struct field it concerns.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries an error together with the offending fields, if any.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
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

// IsShutdown reports whether err (or its cause) calls for a graceful stop.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
