package ml

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModelUnavailable is returned when no fitted artifact has been produced
// or loaded.
var ErrModelUnavailable = errors.New("model unavailable")

// SchemaError reports a training dataset whose columns do not match the
// pipeline's schema.
type SchemaError struct {
	Missing   []string
	Duplicate []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicate columns: "+strings.Join(e.Duplicate, ", "))
	}
	if len(parts) == 0 {
		return "schema error"
	}
	return "schema error: " + strings.Join(parts, "; ")
}

// ConversionError reports a value that cannot be coerced to its field's type.
// Row is the 1-based spreadsheet row for training data and 0 for requests.
type ConversionError struct {
	Field string
	Value string
	Row   int
	Err   error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("field %q: cannot convert %q", e.Field, e.Value)
	if e.Row > 0 {
		msg = fmt.Sprintf("row %d: %s", e.Row, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
