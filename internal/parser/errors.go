package parser

import (
	"errors"
	"fmt"
)

var (
	ErrNotASignal       = errors.New("not a signal")
	ErrUnknownDirection = errors.New("unknown direction")
	ErrBadTimeFormat    = errors.New("bad time format")
	ErrMissingField     = errors.New("missing field")
)

// ParseError: почему сообщение не стало сигналом. Reason содержит один из Err* выше.
type ParseError struct {
	Reason error
	Field  string
	Value  string
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "" && e.Value != "":
		return fmt.Sprintf("parse: %v: %s=%q", e.Reason, e.Field, e.Value)
	case e.Field != "":
		return fmt.Sprintf("parse: %v: %s", e.Reason, e.Field)
	default:
		return fmt.Sprintf("parse: %v", e.Reason)
	}
}

func (e *ParseError) Unwrap() error { return e.Reason }

func fail(reason error, field, value string) *ParseError {
	return &ParseError{Reason: reason, Field: field, Value: value}
}
