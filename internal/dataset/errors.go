package dataset

import (
	"fmt"
	"strings"
)

// MissingColumnsError indicates the header lacks one or more required columns.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("csv is missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ParseError indicates the input could not be decoded as CSV.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("decode csv at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("decode csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// InvalidValueError is returned under the reject policies when a cell cannot be coerced.
type InvalidValueError struct {
	Line   int
	Column string
	Value  string
}

func (e *InvalidValueError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid %s value %q", e.Line, e.Column, e.Value)
	}
	return fmt.Sprintf("invalid %s value %q", e.Column, e.Value)
}
