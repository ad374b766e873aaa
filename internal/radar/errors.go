package radar

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every read on a dataset after Close.
	ErrClosed = errors.New("radar: dataset closed")

	// ErrNotReady is returned when a read is attempted before the dataset
	// has finished opening.
	ErrNotReady = errors.New("radar: dataset not ready")

	// ErrUnknownField is returned for a field name that is not listed by
	// the dataset, including fields excluded because their geometry could
	// not be established.
	ErrUnknownField = errors.New("radar: unknown field")

	// ErrInvalidRange is returned by field-access collaborators when a
	// windowed read falls outside the declared bounds of a variable.
	ErrInvalidRange = errors.New("radar: invalid range")
)

// GeometryError reports a declared shape that is inconsistent with the
// auxiliary index tables, or a field that needs tables it does not have.
type GeometryError struct {
	Field  string
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("radar: geometry of %q: %s", e.Field, e.Reason)
}

func geometryErrorf(field, format string, args ...any) *GeometryError {
	return &GeometryError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// OutOfRangeError reports a sweep, ray or gate index beyond known bounds.
type OutOfRangeError struct {
	Field string
	Axis  string // "sweep", "ray" or "gate"
	Index int
	Limit int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("radar: %s index %d out of range [0, %d) for %q", e.Axis, e.Index, e.Limit, e.Field)
}

// UnderlyingReadError wraps a failure of the field-access collaborator.
// The original error is available through errors.Unwrap and is safe to retry.
type UnderlyingReadError struct {
	Field string
	Err   error
}

func (e *UnderlyingReadError) Error() string {
	return fmt.Sprintf("radar: read %q: %v", e.Field, e.Err)
}

func (e *UnderlyingReadError) Unwrap() error { return e.Err }

// MissingMetadataError reports an absent coordinate variable. Statistics
// recover from it by substituting documented defaults.
type MissingMetadataError struct {
	Field    string
	Axis     Axis
	Variable string
}

func (e *MissingMetadataError) Error() string {
	if e.Variable == "" {
		return fmt.Sprintf("radar: no %s coordinate for %q", e.Axis, e.Field)
	}
	return fmt.Sprintf("radar: %s coordinate %q for %q is missing", e.Axis, e.Variable, e.Field)
}

// IsMissingMetadata reports whether err is, or wraps, a MissingMetadataError.
func IsMissingMetadata(err error) bool {
	var mm *MissingMetadataError
	return errors.As(err, &mm)
}
