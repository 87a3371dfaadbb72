package dwarf

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOutOfBounds             = errors.New("read out of bounds")
	ErrOverflow                = errors.New("LEB128 value overflows 64 bits")
	ErrMalformedAbbrev         = errors.New("malformed abbreviation table")
	ErrUnknownAbbreviationCode = errors.New("unknown abbreviation code")
	ErrTruncatedUnit           = errors.New("truncated unit")
	ErrMalformedUnit           = errors.New("malformed unit")
	ErrMalformedRanges         = errors.New("malformed range list")
	ErrUnsupportedForm         = errors.New("unsupported form")
	ErrUnsupportedVersion      = errors.New("unsupported version")
	ErrDanglingReference       = errors.New("dangling reference")
	ErrBadStringOffset         = errors.New("bad string offset")
	ErrCorruptSectionLength    = errors.New("corrupt section length")
	ErrSectionNotFound         = errors.New("section not found")
)

// FormatError describes a decoding failure at a position within a section.
// Err is one of the sentinel errors above; Cause, if set, is the lower level
// failure that triggered it. errors.Is matches both.
type FormatError struct {
	Section string
	Offset  int64
	Err     error
	Cause   error
	Detail  string
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Section != "" {
		fmt.Fprintf(&b, " at %s+%#x", e.Section, e.Offset)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *FormatError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// UnitError reports a unit that could not be decoded.
type UnitError struct {
	Offset Offset
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit at %#x: %v", uint64(e.Offset), e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
